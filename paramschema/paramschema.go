// Package paramschema implements the parameter schema component (spec C2):
// it turns a growth-model form's named fixed effects plus the nuisance
// parameters the fit needs (rho, sigma_u, sigma2_res, regLag, per-block
// random effects) into one ordered name->index map, validates the
// caller-supplied parameter configuration against it, and derives starting
// values and the Metropolis-Hastings proposal (sampler) variance from it.
//
// Grounded on optimize/parameter.go's FloatParameters bookkeeping (teacher)
// and ParametersMapUtilities.java's validation rules (original_source).
package paramschema

import (
	"fmt"

	"github.com/borealgrowth/metamodel/metaerr"
)

// Reserved nuisance parameter names (spec §3 "Parameter vector").
const (
	Rho               = "rho"
	RandomEffectSTD   = "sigma_u"
	ResidualVariance  = "sigma2_res"
	RegLag            = "regLag"
)

// MaxRegenerationLagYr is the upper bound of the regLag prior and the
// threshold below which a stratum is considered at risk of regeneration
// lag (spec §4.4, §3 invariants).
const MaxRegenerationLagYr = 10.0

// Distribution is the only prior kind spec.md's ParamConfig currently
// supports. Any other name is a ConfigurationError (UnsupportedDistribution).
const UniformDistribution = "Uniform"

// Config is one entry of the caller-supplied parameter configuration
// (spec §6, ParamConfig): a starting value and a uniform prior range for a
// named parameter.
type Config struct {
	Parameter     string
	StartingValue float64
	Distribution  string
	DistParms     [2]float64 // [lower, upper] for Uniform
}

// Slot describes one entry of the built schema: its name, its index, and
// whether it is one of the reserved nuisance names or a random-effect slot.
type Slot struct {
	Name  string
	Index int
	Kind  SlotKind
}

// SlotKind classifies a schema slot for sampler-variance purposes (spec
// §4.1).
type SlotKind int

const (
	// KindFixedEffect is a growth-model fixed effect (b1..bk) or a pure
	// scalar nuisance parameter other than regLag and random-effect slots.
	KindFixedEffect SlotKind = iota
	// KindRandomEffectSTD is the sigma_u slot.
	KindRandomEffectSTD
	// KindRegLag is the regLag slot.
	KindRegLag
	// KindRandomEffectDraw is a per-block random-effect draw u_i.
	KindRandomEffectDraw
)

// Schema is the name->index map plus enough bookkeeping to compute
// starting values and sampler variance. It is built once per candidate
// growth-model instance and is immutable afterward.
type Schema struct {
	slots       []Slot
	index       map[string]int
	configs     map[string]Config
	randomEffect bool
	regLag      bool
	sigmaUIndex int // -1 if absent
	regLagIndex int // -1 if absent
}

// Build constructs a Schema.
//
// fixedEffects is the growth form's ordered effect list (b1..bk).
// hasRandomEffect is true for the "...WithRandomEffect" variants.
// needsResidualVariance is true when the simulator did not supply
// per-observation variance (so sigma2_res must be estimated).
// needsRegLag is true iff at least one block's initial age is <= 10.
// nBlocks is the number of DataBlocks (used to append one random-effect
// draw per block when hasRandomEffect is true).
// configs is the caller-supplied parameter configuration (spec's
// ParamConfig); a name left out means "use defaults" and must be filled in
// by the caller (from the growth form's default configuration) before
// calling Build. Only regLag gets a built-in default here.
func Build(fixedEffects []string, hasRandomEffect, needsResidualVariance, needsRegLag bool, nBlocks int, configs []Config) (*Schema, error) {
	cfgByName := make(map[string]Config, len(configs))
	for _, c := range configs {
		if c.Distribution != UniformDistribution {
			return nil, fmt.Errorf("%s: %w", c.Distribution, metaerr.ErrUnsupportedDistribution)
		}
		cfgByName[c.Parameter] = c
	}

	s := &Schema{
		index:        make(map[string]int),
		configs:      cfgByName,
		randomEffect: hasRandomEffect,
		regLag:       needsRegLag,
		sigmaUIndex:  -1,
		regLagIndex:  -1,
	}

	nuisance := map[string]bool{RegLag: true}

	appendSlot := func(name string, kind SlotKind) {
		idx := len(s.slots)
		s.slots = append(s.slots, Slot{Name: name, Index: idx, Kind: kind})
		s.index[name] = idx
	}

	for _, name := range fixedEffects {
		if _, ok := cfgByName[name]; !ok && !nuisance[name] {
			return nil, fmt.Errorf("missing configuration for parameter %q: %w", name, metaerr.ErrConfiguration)
		}
		appendSlot(name, KindFixedEffect)
	}

	appendSlot(Rho, KindFixedEffect)
	if _, ok := cfgByName[Rho]; !ok {
		return nil, fmt.Errorf("missing configuration for parameter %q: %w", Rho, metaerr.ErrConfiguration)
	}

	if hasRandomEffect {
		appendSlot(RandomEffectSTD, KindRandomEffectSTD)
		s.sigmaUIndex = s.index[RandomEffectSTD]
		if _, ok := cfgByName[RandomEffectSTD]; !ok {
			return nil, fmt.Errorf("missing configuration for parameter %q: %w", RandomEffectSTD, metaerr.ErrConfiguration)
		}
	}

	if needsResidualVariance {
		appendSlot(ResidualVariance, KindFixedEffect)
		if _, ok := cfgByName[ResidualVariance]; !ok {
			return nil, fmt.Errorf("missing configuration for parameter %q: %w", ResidualVariance, metaerr.ErrConfiguration)
		}
	}

	if needsRegLag {
		appendSlot(RegLag, KindRegLag)
		s.regLagIndex = s.index[RegLag]
		// regLag's prior is always Uniform(0, MaxRegenerationLagYr); it
		// does not need to come from the caller's config (spec §4.4).
		if _, ok := cfgByName[RegLag]; !ok {
			cfgByName[RegLag] = Config{
				Parameter:     RegLag,
				StartingValue: 0,
				Distribution:  UniformDistribution,
				DistParms:     [2]float64{0, MaxRegenerationLagYr},
			}
		}
	}

	if hasRandomEffect {
		for i := 0; i < nBlocks; i++ {
			appendSlot(fmt.Sprintf("u_%d", i), KindRandomEffectDraw)
		}
	}

	return s, nil
}

// Len returns the total number of parameter-vector entries.
func (s *Schema) Len() int { return len(s.slots) }

// Index returns the index of a named parameter and whether it exists.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// MustIndex panics if name is not in the schema; used for the reserved
// names that Build always ensures exist when applicable.
func (s *Schema) MustIndex(name string) int {
	i, ok := s.index[name]
	if !ok {
		panic(fmt.Sprintf("paramschema: no such parameter %q", name))
	}
	return i
}

// Slots returns the ordered list of slots.
func (s *Schema) Slots() []Slot { return s.slots }

// HasRandomEffect reports whether this schema includes sigma_u and
// per-block random-effect draws.
func (s *Schema) HasRandomEffect() bool { return s.randomEffect }

// HasRegLag reports whether this schema includes the regLag slot.
func (s *Schema) HasRegLag() bool { return s.regLag }

// FixedEffectIndices returns the indices of slots that are not
// random-effect draws (everything but the per-block u_i entries), in
// schema order, so it includes rho, sigma_u, sigma2_res and regLag. The
// coordinator does not use it: it slices parameterCovariance by the growth
// form's own b1..bk indices.
func (s *Schema) FixedEffectIndices() []int {
	idx := make([]int, 0, len(s.slots))
	for _, sl := range s.slots {
		if sl.Kind != KindRandomEffectDraw {
			idx = append(idx, sl.Index)
		}
	}
	return idx
}

// StartingValues returns the starting-value vector in schema order. Random
// effect draws default to 0 (spec's "the lag is 0 by default" convention
// generalizes: every random effect starts at its prior mean, 0).
func (s *Schema) StartingValues() []float64 {
	v := make([]float64, s.Len())
	for _, sl := range s.slots {
		switch sl.Kind {
		case KindRandomEffectDraw:
			v[sl.Index] = 0
		case KindRegLag:
			v[sl.Index] = 0
		default:
			v[sl.Index] = s.configs[sl.Name].StartingValue
		}
	}
	return v
}

// DistParms returns the [lower, upper] uniform prior bounds for a named
// fixed-effect/nuisance parameter (not meaningful for random-effect draws,
// whose prior comes from sigma_u instead; see package prior).
func (s *Schema) DistParms(name string) ([2]float64, bool) {
	c, ok := s.configs[name]
	if !ok {
		return [2]float64{}, false
	}
	return c.DistParms, true
}

// SamplerVariance implements spec §4.1's samplerVariance(parms, coefVar):
//
//	fixed effects:        (parms[i] * coefVar)^2
//	random-effect draws:  (sigma_u * coefVar)^2   (never the raw draw value)
//	regLag:                (MaxRegenerationLagYr * coefVar)^2
//
// parms must be a full parameter vector in schema order (length s.Len()).
func (s *Schema) SamplerVariance(parms []float64, coefVar float64) []float64 {
	if len(parms) != s.Len() {
		panic("paramschema: SamplerVariance: parms length mismatch")
	}
	out := make([]float64, s.Len())
	for _, sl := range s.slots {
		switch sl.Kind {
		case KindRegLag:
			out[sl.Index] = (MaxRegenerationLagYr * coefVar) * (MaxRegenerationLagYr * coefVar)
		case KindRandomEffectDraw:
			sigmaU := parms[s.sigmaUIndex]
			out[sl.Index] = (sigmaU * coefVar) * (sigmaU * coefVar)
		default:
			out[sl.Index] = (parms[sl.Index] * coefVar) * (parms[sl.Index] * coefVar)
		}
	}
	return out
}
