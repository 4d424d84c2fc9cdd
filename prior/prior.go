// Package prior implements the prior handler component (spec C6): one
// continuous distribution per fixed parameter plus the hierarchical
// random-effect specification, and the summed log-density used by the
// sampler's Metropolis-Hastings acceptance ratio.
//
// Grounded on optimize/prior.go's composable prior-function style (teacher)
// and AbstractMixedModelFullImplementation.setPriorDistributions /
// AbstractModelImplementation.setPriorDistributions (original_source) for
// the N(0,1) proposal vs N(0, sigma_u^2) effective-density split on random
// effects.
package prior

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/borealgrowth/metamodel/metaerr"
	"github.com/borealgrowth/metamodel/paramschema"
	"gonum.org/v1/gonum/stat/distuv"
)

// Handler holds one Uniform distribution per fixed/nuisance slot and knows
// which slots are per-block random-effect draws, whose effective prior
// density depends on the current value of sigma_u rather than being fixed
// at construction (spec §4.5).
type Handler struct {
	schema    *paramschema.Schema
	uniforms  map[int]distuv.Uniform // slot index -> prior, fixed/nuisance slots only
	sigmaUIdx int                    // -1 if this schema has no random effect
}

// Build constructs a Handler from a schema and the caller-resolved
// parameter configuration (one Config per non-random-effect-draw slot,
// already defaulted by the growth form if the caller passed nil).
func Build(schema *paramschema.Schema, configs []paramschema.Config) (*Handler, error) {
	byName := make(map[string]paramschema.Config, len(configs))
	for _, c := range configs {
		byName[c.Parameter] = c
	}

	h := &Handler{schema: schema, uniforms: make(map[int]distuv.Uniform), sigmaUIdx: -1}
	for _, slot := range schema.Slots() {
		if slot.Kind == paramschema.KindRandomEffectDraw {
			continue
		}
		cfg, ok := byName[slot.Name]
		if !ok {
			return nil, fmt.Errorf("missing prior configuration for %q: %w", slot.Name, metaerr.ErrConfiguration)
		}
		h.uniforms[slot.Index] = distuv.Uniform{Min: cfg.DistParms[0], Max: cfg.DistParms[1]}
		if slot.Kind == paramschema.KindRandomEffectSTD {
			h.sigmaUIdx = slot.Index
		}
	}
	return h, nil
}

// LogDensity returns log p(parms), the sum of every slot's log-density
// (spec §4.5). For random-effect draws the effective density is
// N(0, sigma_u^2); if sigma_u <= 0 the density is undefined and this
// returns -Inf, which the sampler treats as an automatic rejection.
func (h *Handler) LogDensity(parms []float64) float64 {
	total := 0.0
	for _, slot := range h.schema.Slots() {
		if slot.Kind == paramschema.KindRandomEffectDraw {
			sigmaU := parms[h.sigmaUIdx]
			if sigmaU <= 0 {
				return math.Inf(-1)
			}
			total += distuv.Normal{Mu: 0, Sigma: sigmaU}.LogProb(parms[slot.Index])
			continue
		}
		total += h.uniforms[slot.Index].LogProb(parms[slot.Index])
	}
	return total
}

// DrawFromProposal draws a random-effect slot's nominal N(0,1) proposal
// value (spec §4.5's "proposal Gaussian N(0,1)"), used by the sampler's
// initial grid search to seed u_i before sigma_u has a fitted value.
// rng is the worker's deterministic per-chain source (spec §5).
func DrawFromProposal(rng *rand.Rand) float64 {
	return distuv.Normal{Mu: 0, Sigma: 1, Src: rng}.Rand()
}
