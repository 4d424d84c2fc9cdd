package coordinator

import (
	"errors"
	"testing"

	"github.com/borealgrowth/metamodel/dataset"
	"github.com/borealgrowth/metamodel/growth"
	"github.com/borealgrowth/metamodel/metaerr"
	"github.com/borealgrowth/metamodel/paramschema"
	"github.com/borealgrowth/metamodel/sampler"
)

// fixtureStructure builds a single-block structure following an
// approximate exponential decay, with simulator variance unavailable (so
// sigma2_res is estimated) and an initial age well above the regeneration
// lag threshold.
func fixtureStructure() *dataset.Structure {
	ages := []float64{20, 30, 40, 50}
	estimates := []float64{36.8, 22.3, 13.5, 8.2} // ~100*exp(-0.05*t)
	observations := make([]dataset.Observation, len(ages))
	indices := make([]int, len(ages))
	for i, a := range ages {
		observations[i] = dataset.Observation{
			InitialAgeYr:    20,
			YearsSinceStart: int(a) - 20,
			OutputType:      "AliveVolume_AllSpecies",
			Estimate:        estimates[i],
			NbPlots:         50,
		}
		indices[i] = i
	}
	db := &dataset.DataBlock{
		InitialAgeYr: 20,
		OutputType:   "AliveVolume_AllSpecies",
		Indices:      indices,
		AgeYr:        ages,
		NbPlots:      50,
	}
	return &dataset.Structure{
		OutputType:          "AliveVolume_AllSpecies",
		Observations:        observations,
		Blocks:              []*dataset.DataBlock{db},
		MinimumStratumAgeYr: 20,
		VarCov:              nil,
	}
}

func exponentialCandidate() Candidate {
	configs := []paramschema.Config{
		{Parameter: "b1", StartingValue: 90, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 500}},
		{Parameter: "b2", StartingValue: 0.04, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0.001, 0.2}},
		{Parameter: paramschema.Rho, StartingValue: 0.5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 0.995}},
		{Parameter: paramschema.ResidualVariance, StartingValue: 5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 1000}},
	}
	return Candidate{Name: growth.Exponential, Configs: configs}
}

func easyConfig() sampler.Config {
	return sampler.Config{
		NbBurnIn:               20,
		NbAcceptedRealizations: 80,
		OneEach:                2,
		CoefVar:                0.3,
		AcceptanceRateMin:      0,
		AcceptanceRateMax:      1,
		RepPeriod:              0,
	}
}

func TestFitSelectsConvergedCandidate(t *testing.T) {
	structure := fixtureStructure()
	c := New()
	err := c.Fit(structure, []Candidate{exponentialCandidate()}, easyConfig(), 11)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if !c.HasConverged() {
		t.Fatalf("expected coordinator to report converged")
	}
	if c.WinnerName() != growth.Exponential {
		t.Fatalf("expected winner %q, got %q", growth.Exponential, c.WinnerName())
	}
	if len(c.Ranking) != 1 || !c.Ranking[0].Converged {
		t.Fatalf("expected a single converged ranking row, got %+v", c.Ranking)
	}
}

func TestFitReturnsNoCandidateConvergedWhenAllFail(t *testing.T) {
	structure := fixtureStructure()
	c := New()
	cfg := easyConfig()
	cfg.AcceptanceRateMin = 2
	cfg.AcceptanceRateMax = 3
	err := c.Fit(structure, []Candidate{exponentialCandidate()}, cfg, 13)
	if !errors.Is(err, metaerr.ErrNoCandidateConverged) {
		t.Fatalf("expected ErrNoCandidateConverged, got %v", err)
	}
	if c.HasConverged() {
		t.Fatalf("expected coordinator to remain unfitted")
	}
}

func TestPredictBeforeFitIsNotFitted(t *testing.T) {
	c := New()
	if _, err := c.Predict(30, 0); !errors.Is(err, metaerr.ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got %v", err)
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	structure := fixtureStructure()
	c := New()
	if err := c.Fit(structure, []Candidate{exponentialCandidate()}, easyConfig(), 17); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	p1, err := c.Predict(30, 0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	p2, err := c.Predict(30, 0)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if p1 != p2 {
		t.Fatalf("expected bit-identical predictions, got %v and %v", p1, p2)
	}
}

func TestPredictionsWithVariance(t *testing.T) {
	structure := fixtureStructure()
	c := New()
	if err := c.Fit(structure, []Candidate{exponentialCandidate()}, easyConfig(), 19); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	rows, err := c.Predictions([]float64{20, 30, 40}, 0, VariancePointEstimate)
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.Variance < 0 {
			t.Fatalf("expected non-negative variance, got %v for age %v", r.Variance, r.AgeYr)
		}
	}
}

func TestMonteCarloPredictionsRowCount(t *testing.T) {
	structure := fixtureStructure()
	c := New()
	if err := c.Fit(structure, []Candidate{exponentialCandidate()}, easyConfig(), 23); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	ages := []float64{20, 30, 40, 50}

	zero, err := c.MonteCarloPredictions(ages, 0, 0, 0)
	if err != nil {
		t.Fatalf("MonteCarloPredictions: %v", err)
	}
	if len(zero) != len(ages) {
		t.Fatalf("expected %d rows with zero variability, got %d", len(ages), len(zero))
	}
	for i, row := range zero {
		direct, err := c.Predict(row.AgeYr, 0)
		if err != nil {
			t.Fatalf("Predict: %v", err)
		}
		if row.Pred != direct {
			t.Fatalf("row %d: expected zero-variability prediction to match Predict, got %v vs %v", i, row.Pred, direct)
		}
	}

	withVariability, err := c.MonteCarloPredictions(ages, 0, 3, 2)
	if err != nil {
		t.Fatalf("MonteCarloPredictions: %v", err)
	}
	if len(withVariability) != 2*3*len(ages) {
		t.Fatalf("expected %d rows, got %d", 2*3*len(ages), len(withVariability))
	}
}
