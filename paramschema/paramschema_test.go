package paramschema

import (
	"errors"
	"testing"

	"github.com/borealgrowth/metamodel/metaerr"
)

func chapmanRichardsConfigs() []Config {
	return []Config{
		{Parameter: "b1", StartingValue: 30, Distribution: UniformDistribution, DistParms: [2]float64{0, 200}},
		{Parameter: "b2", StartingValue: 0.02, Distribution: UniformDistribution, DistParms: [2]float64{0, 1}},
		{Parameter: "b3", StartingValue: 2, Distribution: UniformDistribution, DistParms: [2]float64{0, 10}},
		{Parameter: Rho, StartingValue: 0.5, Distribution: UniformDistribution, DistParms: [2]float64{0, 1}},
		{Parameter: ResidualVariance, StartingValue: 1, Distribution: UniformDistribution, DistParms: [2]float64{0, 1000}},
	}
}

func TestBuildFixedEffectOrder(t *testing.T) {
	s, err := Build([]string{"b1", "b2", "b3"}, false, true, false, 0, chapmanRichardsConfigs())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"b1", "b2", "b3", Rho, ResidualVariance}
	if s.Len() != len(wantOrder) {
		t.Fatalf("expected %d slots, got %d", len(wantOrder), s.Len())
	}
	for i, name := range wantOrder {
		idx, ok := s.Index(name)
		if !ok || idx != i {
			t.Fatalf("expected %q at index %d, got %d ok=%v", name, i, idx, ok)
		}
	}
}

func TestBuildRandomEffectAndRegLag(t *testing.T) {
	configs := append(chapmanRichardsConfigs(), Config{
		Parameter: RandomEffectSTD, StartingValue: 1, Distribution: UniformDistribution, DistParms: [2]float64{0, 50},
	})
	s, err := Build([]string{"b1", "b2", "b3"}, true, true, true, 2, configs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantOrder := []string{"b1", "b2", "b3", Rho, RandomEffectSTD, ResidualVariance, RegLag, "u_0", "u_1"}
	if s.Len() != len(wantOrder) {
		t.Fatalf("expected %d slots, got %d", len(wantOrder), s.Len())
	}
	for i, name := range wantOrder {
		idx, ok := s.Index(name)
		if !ok || idx != i {
			t.Fatalf("expected %q at index %d, got %d ok=%v", name, i, idx, ok)
		}
	}
	fixed := s.FixedEffectIndices()
	if len(fixed) != 7 {
		t.Fatalf("expected 7 fixed-effect indices (excludes u_0, u_1), got %d", len(fixed))
	}
}

func TestBuildMissingParameterConfig(t *testing.T) {
	configs := []Config{
		{Parameter: "b1", StartingValue: 30, Distribution: UniformDistribution, DistParms: [2]float64{0, 200}},
		{Parameter: Rho, StartingValue: 0.5, Distribution: UniformDistribution, DistParms: [2]float64{0, 1}},
	}
	_, err := Build([]string{"b1", "b2"}, false, false, false, 0, configs)
	if !errors.Is(err, metaerr.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestBuildUnsupportedDistribution(t *testing.T) {
	configs := []Config{
		{Parameter: "b1", StartingValue: 30, Distribution: "Normal"},
	}
	_, err := Build([]string{"b1"}, false, false, false, 0, configs)
	if !errors.Is(err, metaerr.ErrUnsupportedDistribution) {
		t.Fatalf("expected ErrUnsupportedDistribution, got %v", err)
	}
}

func TestSamplerVariance(t *testing.T) {
	configs := append(chapmanRichardsConfigs(), Config{
		Parameter: RandomEffectSTD, StartingValue: 1, Distribution: UniformDistribution, DistParms: [2]float64{0, 50},
	})
	s, err := Build([]string{"b1", "b2", "b3"}, true, true, true, 1, configs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parms := s.StartingValues()
	sigmaU := 2.5
	parms[s.MustIndex(RandomEffectSTD)] = sigmaU

	const coefVar = 0.1
	v := s.SamplerVariance(parms, coefVar)

	b1Idx := s.MustIndex("b1")
	wantB1 := (parms[b1Idx] * coefVar) * (parms[b1Idx] * coefVar)
	if v[b1Idx] != wantB1 {
		t.Fatalf("b1 sampler variance: got %v want %v", v[b1Idx], wantB1)
	}

	regLagIdx := s.MustIndex(RegLag)
	wantRegLag := (MaxRegenerationLagYr * coefVar) * (MaxRegenerationLagYr * coefVar)
	if v[regLagIdx] != wantRegLag {
		t.Fatalf("regLag sampler variance: got %v want %v", v[regLagIdx], wantRegLag)
	}

	uIdx := s.MustIndex("u_0")
	wantU := (sigmaU * coefVar) * (sigmaU * coefVar)
	if v[uIdx] != wantU {
		t.Fatalf("random effect sampler variance: got %v want %v", v[uIdx], wantU)
	}
}
