package dataset

import (
	"errors"
	"testing"

	"github.com/borealgrowth/metamodel/metaerr"
	"gonum.org/v1/gonum/mat"
)

// fixtureResultSet is a minimal in-memory ResultSet used by tests.
type fixtureResultSet struct {
	outputTypes []string
	rows        []Row
	nbPlots     int
	nbReal      int
	scenario    string
	model       string
	varCov      *mat.SymDense
}

func (f *fixtureResultSet) OutputTypes() []string         { return f.outputTypes }
func (f *fixtureResultSet) DataSet() []Row                { return f.rows }
func (f *fixtureResultSet) NbPlots() int                  { return f.nbPlots }
func (f *fixtureResultSet) NbRealizations() int           { return f.nbReal }
func (f *fixtureResultSet) ClimateChangeScenario() string { return f.scenario }
func (f *fixtureResultSet) GrowthModel() string           { return f.model }
func (f *fixtureResultSet) IsCompatible(other ResultSet) bool {
	o, ok := other.(*fixtureResultSet)
	if !ok {
		return false
	}
	return f.model == o.model && f.nbReal == o.nbReal && f.scenario == o.scenario
}
func (f *fixtureResultSet) ComputeVarCovErrorTerm(outputType string) *mat.SymDense {
	return f.varCov
}

func makeRS(age int, n int) *fixtureResultSet {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{DateYr: i * 5, OutputType: "AliveVolume_AllSpecies", Estimate: float64(i) * 10, NbPlots: 20}
	}
	return &fixtureResultSet{
		outputTypes: []string{"AliveVolume_AllSpecies"},
		rows:        rows,
		nbPlots:     20,
		nbReal:      1000,
		scenario:    "RCP45",
		model:       "ARTEMIS",
		varCov:      mat.NewSymDense(n, nil),
	}
}

func TestBuildGroupsIntoBlocksByAgeAndOutputType(t *testing.T) {
	rs20 := makeRS(20, 3)
	rs50 := makeRS(50, 2)
	s, err := Build([]struct {
		InitialAgeYr int
		RS           ResultSet
	}{
		{20, rs20},
		{50, rs50},
	}, "AliveVolume_AllSpecies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(s.Blocks))
	}
	if s.Blocks[0].InitialAgeYr != 20 || s.Blocks[0].Size() != 3 {
		t.Fatalf("unexpected first block: %+v", s.Blocks[0])
	}
	if s.Blocks[1].InitialAgeYr != 50 || s.Blocks[1].Size() != 2 {
		t.Fatalf("unexpected second block: %+v", s.Blocks[1])
	}
	if s.MinimumStratumAgeYr != 20 {
		t.Fatalf("expected minimum stratum age 20, got %d", s.MinimumStratumAgeYr)
	}
	if s.NeedsRegenerationLag() {
		t.Fatalf("expected no regeneration lag for minimum age 20")
	}
	if len(s.Observations) != 5 {
		t.Fatalf("expected 5 total observations, got %d", len(s.Observations))
	}
}

func TestBuildUnknownOutputType(t *testing.T) {
	rs := makeRS(20, 3)
	_, err := Build([]struct {
		InitialAgeYr int
		RS           ResultSet
	}{{20, rs}}, "StemDensity")
	if !errors.Is(err, metaerr.ErrUnknownOutputType) {
		t.Fatalf("expected ErrUnknownOutputType, got %v", err)
	}
}

func TestBuildIncompatibleResultSet(t *testing.T) {
	rs1 := makeRS(20, 3)
	rs2 := makeRS(50, 2)
	rs2.model = "SORTIE"
	_, err := Build([]struct {
		InitialAgeYr int
		RS           ResultSet
	}{{20, rs1}, {50, rs2}}, "AliveVolume_AllSpecies")
	if !errors.Is(err, metaerr.ErrIncompatibleScriptResult) {
		t.Fatalf("expected ErrIncompatibleScriptResult, got %v", err)
	}
}

func TestRegenerationLagActivatesBelowThreshold(t *testing.T) {
	rsYoung := makeRS(5, 2)
	rsOld := makeRS(50, 2)
	s, err := Build([]struct {
		InitialAgeYr int
		RS           ResultSet
	}{{5, rsYoung}, {50, rsOld}}, "AliveVolume_AllSpecies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.NeedsRegenerationLag() {
		t.Fatalf("expected regeneration lag to be needed for minimum age 5")
	}
}
