package prior

import (
	"math"
	"math/rand"
	"testing"

	"github.com/borealgrowth/metamodel/paramschema"
)

func buildFixedSchema(t *testing.T) (*paramschema.Schema, []paramschema.Config) {
	configs := []paramschema.Config{
		{Parameter: "b1", StartingValue: 30, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 200}},
		{Parameter: "b2", StartingValue: 0.02, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 1}},
		{Parameter: paramschema.Rho, StartingValue: 0.5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 1}},
	}
	s, err := paramschema.Build([]string{"b1", "b2"}, false, false, false, 0, configs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return s, configs
}

func TestLogDensityWithinBoundsIsFinite(t *testing.T) {
	schema, configs := buildFixedSchema(t)
	h, err := Build(schema, configs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	parms := []float64{30, 0.02, 0.5}
	ld := h.LogDensity(parms)
	if math.IsInf(ld, -1) {
		t.Fatalf("expected finite log-density within bounds, got -Inf")
	}
}

func TestLogDensityOutsideBoundsIsNegInf(t *testing.T) {
	schema, configs := buildFixedSchema(t)
	h, err := Build(schema, configs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	parms := []float64{300, 0.02, 0.5} // b1 out of [0,200]
	ld := h.LogDensity(parms)
	if !math.IsInf(ld, -1) {
		t.Fatalf("expected -Inf log-density outside bounds, got %v", ld)
	}
}

func TestRandomEffectEffectiveDensityUsesSigmaU(t *testing.T) {
	configs := []paramschema.Config{
		{Parameter: "b1", StartingValue: 30, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 200}},
		{Parameter: paramschema.Rho, StartingValue: 0.5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 1}},
		{Parameter: paramschema.RandomEffectSTD, StartingValue: 5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 50}},
	}
	schema, err := paramschema.Build([]string{"b1"}, true, false, false, 1, configs)
	if err != nil {
		t.Fatalf("Build schema: %v", err)
	}
	h, err := Build(schema, configs)
	if err != nil {
		t.Fatalf("Build handler: %v", err)
	}
	parms := schema.StartingValues()
	parms[schema.MustIndex(paramschema.RandomEffectSTD)] = 5
	parms[schema.MustIndex("u_0")] = 0
	ldAtZero := h.LogDensity(parms)

	parms[schema.MustIndex("u_0")] = 100
	ldFar := h.LogDensity(parms)
	if ldFar >= ldAtZero {
		t.Fatalf("expected density at u_0=100 (20 sigma_u units out) to be lower than at u_0=0")
	}
}

func TestLogDensityUndefinedWhenSigmaUNonPositive(t *testing.T) {
	configs := []paramschema.Config{
		{Parameter: "b1", StartingValue: 30, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 200}},
		{Parameter: paramschema.Rho, StartingValue: 0.5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 1}},
		{Parameter: paramschema.RandomEffectSTD, StartingValue: 5, Distribution: paramschema.UniformDistribution, DistParms: [2]float64{0, 50}},
	}
	schema, err := paramschema.Build([]string{"b1"}, true, false, false, 1, configs)
	if err != nil {
		t.Fatalf("Build schema: %v", err)
	}
	h, err := Build(schema, configs)
	if err != nil {
		t.Fatalf("Build handler: %v", err)
	}
	parms := schema.StartingValues()
	parms[schema.MustIndex(paramschema.RandomEffectSTD)] = 0
	ld := h.LogDensity(parms)
	if !math.IsInf(ld, -1) {
		t.Fatalf("expected -Inf log-density when sigma_u <= 0, got %v", ld)
	}
}

func TestDrawFromProposalIsDeterministicPerSeed(t *testing.T) {
	r1 := rand.New(rand.NewSource(42))
	r2 := rand.New(rand.NewSource(42))
	a := DrawFromProposal(r1)
	b := DrawFromProposal(r2)
	if a != b {
		t.Fatalf("expected deterministic draw for identical seeds, got %v and %v", a, b)
	}
}
