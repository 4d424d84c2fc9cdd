// Package growth implements the growth-model family component (spec C5):
// the Chapman-Richards family and its variants, each exposing a closed-form
// prediction, closed-form gradient over its fixed effects, its effect list,
// default parameter configuration, and a one-line textual definition.
//
// Per the tagged-sum redesign (spec §9), there is no class hierarchy: one
// Spec value per model form name, looked up by Get. Grounded on
// ChapmanRichardsDerivativeModelImplementation, ExponentialModelImplementation,
// FourParameterChapmanRichardsDerivativeModelImplementation,
// ChapmanRichardsModelWithRandomEffectImplementation and
// AbstractMixedModelFullImplementation (original_source) for the exact
// prediction/gradient/default-value formulas; the tagged-struct-per-variant
// table itself is grounded on the teacher's cmodel/M0.go pattern (one struct
// literal per named variant instead of a subclass per variant).
package growth

import (
	"fmt"
	"math"

	"github.com/borealgrowth/metamodel/metaerr"
	"github.com/borealgrowth/metamodel/paramschema"
)

// Model form names (spec §6, exact string enum).
const (
	ChapmanRichards                                   = "ChapmanRichards"
	ChapmanRichardsWithRandomEffect                   = "ChapmanRichardsWithRandomEffect"
	ChapmanRichardsDerivative                         = "ChapmanRichardsDerivative"
	ChapmanRichardsDerivativeWithRandomEffect         = "ChapmanRichardsDerivativeWithRandomEffect"
	Exponential                                       = "Exponential"
	ExponentialWithRandomEffect                       = "ExponentialWithRandomEffect"
	ModifiedChapmanRichardsDerivative                 = "ModifiedChapmanRichardsDerivative"
	ModifiedChapmanRichardsDerivativeWithRandomEffect = "ModifiedChapmanRichardsDerivativeWithRandomEffect"
)

// Spec describes one growth-model form (spec §4.4).
type Spec struct {
	Name            string
	HasRandomEffect bool
	FixedEffects    []string // effectList(), e.g. []string{"b1","b2","b3"}
	Definition      string

	// Predict evaluates mu(ageYr, timeSinceBeginning, u) given the fixed
	// effects in FixedEffects order.
	Predict func(ageYr, timeSinceBeginning, u float64, b []float64) float64

	// Gradient evaluates d(mu)/d(b_i) for each fixed effect, in
	// FixedEffects order.
	Gradient func(ageYr, timeSinceBeginning, u float64, b []float64) []float64

	// FixedEffectDefaults returns the {Parameter, StartingValue, Uniform,
	// DistParms} configuration for this form's fixed effects, in
	// FixedEffects order (defaults()). It does not include rho, sigma_u or
	// sigma2_res: those are appended by the caller (spec §4.1's reserved
	// names are shared across all forms and carry their own defaults).
	FixedEffectDefaults func() []paramschema.Config

	// RhoDefault, SigmaUDefault and ResidualVarianceDefault are this
	// form's defaults for the reserved nuisance parameters, used when the
	// caller passes nil for ParamConfig (spec §6: "null means use the
	// form's defaults").
	RhoDefault              paramschema.Config
	SigmaUDefault           paramschema.Config // only meaningful when HasRandomEffect
	ResidualVarianceDefault paramschema.Config
}

var registry map[string]Spec

func init() {
	registry = map[string]Spec{
		ChapmanRichards:                            chapmanRichardsSpec(ChapmanRichards, false),
		ChapmanRichardsWithRandomEffect:            chapmanRichardsSpec(ChapmanRichardsWithRandomEffect, true),
		ChapmanRichardsDerivative:                  chapmanRichardsDerivativeSpec(ChapmanRichardsDerivative, false),
		ChapmanRichardsDerivativeWithRandomEffect:  chapmanRichardsDerivativeSpec(ChapmanRichardsDerivativeWithRandomEffect, true),
		Exponential:                                exponentialSpec(Exponential, false),
		ExponentialWithRandomEffect:                exponentialSpec(ExponentialWithRandomEffect, true),
		ModifiedChapmanRichardsDerivative:           modifiedChapmanRichardsDerivativeSpec(ModifiedChapmanRichardsDerivative, false),
		ModifiedChapmanRichardsDerivativeWithRandomEffect: modifiedChapmanRichardsDerivativeSpec(ModifiedChapmanRichardsDerivativeWithRandomEffect, true),
	}
}

// Get looks up a form by its exact spec name.
func Get(name string) (Spec, error) {
	s, ok := registry[name]
	if !ok {
		return Spec{}, fmt.Errorf("%s: %w", name, metaerr.ErrConfiguration)
	}
	return s, nil
}

// Names returns every registered form name, in the spec §6 enum order.
func Names() []string {
	return []string{
		ChapmanRichards, ChapmanRichardsWithRandomEffect,
		ChapmanRichardsDerivative, ChapmanRichardsDerivativeWithRandomEffect,
		Exponential, ExponentialWithRandomEffect,
		ModifiedChapmanRichardsDerivative, ModifiedChapmanRichardsDerivativeWithRandomEffect,
	}
}

func uniform(name string, start, lo, hi float64) paramschema.Config {
	return paramschema.Config{
		Parameter:     name,
		StartingValue: start,
		Distribution:  paramschema.UniformDistribution,
		DistParms:     [2]float64{lo, hi},
	}
}

// PredictWithLag applies the regeneration-lag shift (spec §4.4) on top of a
// form's raw prediction: at effective age a' = ageYr - regLag, returning 0
// if a' <= 0. Pass regLag = 0 (or lagActive = false) when the stratum group
// has no regeneration-lag parameter.
func PredictWithLag(s Spec, ageYr, timeSinceBeginning, u float64, b []float64, regLag float64, lagActive bool) float64 {
	effectiveAge := ageYr
	if lagActive {
		effectiveAge = ageYr - regLag
		if effectiveAge <= 0 {
			return 0
		}
	}
	return s.Predict(effectiveAge, timeSinceBeginning, u, b)
}

// GradientWithLag applies the same effective-age shift to the gradient
// (spec §4.4: "Prediction variance is computed at a'"). Returns a
// zero vector when the effective age is non-positive, mirroring
// PredictWithLag's boundary behavior.
func GradientWithLag(s Spec, ageYr, timeSinceBeginning, u float64, b []float64, regLag float64, lagActive bool) []float64 {
	effectiveAge := ageYr
	if lagActive {
		effectiveAge = ageYr - regLag
		if effectiveAge <= 0 {
			return make([]float64, len(s.FixedEffects))
		}
	}
	return s.Gradient(effectiveAge, timeSinceBeginning, u, b)
}

// --- ChapmanRichards: mu = (b1+u)*(1-e^{-b2*t})^b3 ---

func chapmanRichardsSpec(name string, randomEffect bool) Spec {
	predict := func(ageYr, _, u float64, b []float64) float64 {
		b1, b2, b3 := b[0], b[1], b[2]
		root := 1 - math.Exp(-b2*ageYr)
		return (b1 + u) * math.Pow(root, b3)
	}
	gradient := func(ageYr, _, u float64, b []float64) []float64 {
		b1, b2, b3 := b[0], b[1], b[2]
		c := b1 + u
		exp := math.Exp(-b2 * ageYr)
		root := 1 - exp
		return []float64{
			math.Pow(root, b3),
			c * b3 * math.Pow(root, b3-1) * exp * ageYr,
			c * math.Pow(root, b3) * math.Log(root),
		}
	}
	defaults := func() []paramschema.Config {
		return []paramschema.Config{
			uniform("b1", 100, 0, 400),
			uniform("b2", 0.02, 0.0001, 0.1),
			uniform("b3", 2, 1, 6),
		}
	}
	s := Spec{
		Name:                    name,
		HasRandomEffect:         randomEffect,
		FixedEffects:            []string{"b1", "b2", "b3"},
		Definition:              "y ~ (b1 + u_i)*(1-exp(-b2*t))^b3",
		Predict:                 predict,
		Gradient:                gradient,
		FixedEffectDefaults:     defaults,
		RhoDefault:              uniform(paramschema.Rho, 0.92, 0.80, 0.995),
		ResidualVarianceDefault: uniform(paramschema.ResidualVariance, 250, 0, 5000),
	}
	if randomEffect {
		s.SigmaUDefault = uniform(paramschema.RandomEffectSTD, 200, 0, 10000)
	}
	return s
}

// --- ChapmanRichardsDerivative: mu = (b1+u)*e^{-b2*t}*(1-e^{-b2*t})^b3 ---

func chapmanRichardsDerivativeSpec(name string, randomEffect bool) Spec {
	predict := func(ageYr, _, u float64, b []float64) float64 {
		b1, b2, b3 := b[0], b[1], b[2]
		exp := math.Exp(-b2 * ageYr)
		root := 1 - exp
		return (b1 + u) * exp * math.Pow(root, b3)
	}
	gradient := func(ageYr, _, u float64, b []float64) []float64 {
		b1, b2, b3 := b[0], b[1], b[2]
		c := b1 + u
		exp := math.Exp(-b2 * ageYr)
		root := 1 - exp
		return []float64{
			exp * math.Pow(root, b3),
			c * ageYr * exp * (b3*exp*math.Pow(root, b3-1) - math.Pow(root, b3)),
			c * exp * math.Pow(root, b3) * math.Log(root),
		}
	}
	defaults := func() []paramschema.Config {
		return []paramschema.Config{
			uniform("b1", 1000, 0, 2000),
			uniform("b2", 0.02, 0.00001, 0.05),
			uniform("b3", 2, 0.8, 6),
		}
	}
	s := Spec{
		Name:                    name,
		HasRandomEffect:         randomEffect,
		FixedEffects:            []string{"b1", "b2", "b3"},
		Definition:              "y ~ (b1 + u_i)*exp(-b2*t)*(1-exp(-b2*t))^b3",
		Predict:                 predict,
		Gradient:                gradient,
		FixedEffectDefaults:     defaults,
		RhoDefault:              uniform(paramschema.Rho, 0.92, 0.80, 0.995),
		ResidualVarianceDefault: uniform(paramschema.ResidualVariance, 250, 0, 5000),
	}
	if randomEffect {
		s.SigmaUDefault = uniform(paramschema.RandomEffectSTD, 200, 0, 10000)
	}
	return s
}

// --- Exponential: mu = (b1+u)*e^{-b2*t} ---

func exponentialSpec(name string, randomEffect bool) Spec {
	predict := func(ageYr, _, u float64, b []float64) float64 {
		b1, b2 := b[0], b[1]
		return (b1 + u) * math.Exp(-b2*ageYr)
	}
	gradient := func(ageYr, _, u float64, b []float64) []float64 {
		b1, b2 := b[0], b[1]
		c := b1 + u
		exp := math.Exp(-b2 * ageYr)
		return []float64{
			exp,
			-ageYr * c * exp,
		}
	}
	defaults := func() []paramschema.Config {
		return []paramschema.Config{
			uniform("b1", 2000, 0, 8000),
			uniform("b2", 0.005, 0.00001, 0.05),
		}
	}
	s := Spec{
		Name:                    name,
		HasRandomEffect:         randomEffect,
		FixedEffects:            []string{"b1", "b2"},
		Definition:              "y ~ (b1 + u_i)*exp(-b2*t)",
		Predict:                 predict,
		Gradient:                gradient,
		FixedEffectDefaults:     defaults,
		RhoDefault:              uniform(paramschema.Rho, 0.92, 0.80, 0.995),
		ResidualVarianceDefault: uniform(paramschema.ResidualVariance, 10000, 0, 20000),
	}
	if randomEffect {
		s.SigmaUDefault = uniform(paramschema.RandomEffectSTD, 1000, 0, 3000)
	}
	return s
}

// --- ModifiedChapmanRichardsDerivative (4-parameter):
//     mu = (b1+u)*e^{-b2*t}*(1-e^{-b3*t})^b4 ---

func modifiedChapmanRichardsDerivativeSpec(name string, randomEffect bool) Spec {
	predict := func(ageYr, _, u float64, b []float64) float64 {
		b1, b2, b3, b4 := b[0], b[1], b[2], b[3]
		e2 := math.Exp(-b2 * ageYr)
		e3 := math.Exp(-b3 * ageYr)
		root := 1 - e3
		return (b1 + u) * e2 * math.Pow(root, b4)
	}
	gradient := func(ageYr, _, u float64, b []float64) []float64 {
		b1, b2, b3, b4 := b[0], b[1], b[2], b[3]
		c := b1 + u
		e2 := math.Exp(-b2 * ageYr)
		e3 := math.Exp(-b3 * ageYr)
		root := 1 - e3
		return []float64{
			e2 * math.Pow(root, b4),
			-ageYr * c * e2 * math.Pow(root, b4),
			c * e2 * b4 * math.Pow(root, b4-1) * e3 * ageYr,
			c * e2 * math.Pow(root, b4) * math.Log(root),
		}
	}
	defaults := func() []paramschema.Config {
		return []paramschema.Config{
			uniform("b1", 5000, 0, 10000),
			uniform("b2", 0.006, 0.001, 0.01),
			uniform("b3", 0.02, 0.00001, 0.2),
			uniform("b4", 1, 0.1, 4),
		}
	}
	s := Spec{
		Name:                    name,
		HasRandomEffect:         randomEffect,
		FixedEffects:            []string{"b1", "b2", "b3", "b4"},
		Definition:              "y ~ (b1 + u_i)*exp(-b2*t)*(1-exp(-b3*t))^b4",
		Predict:                 predict,
		Gradient:                gradient,
		FixedEffectDefaults:     defaults,
		RhoDefault:              uniform(paramschema.Rho, 0.92, 0.80, 0.995),
		ResidualVarianceDefault: uniform(paramschema.ResidualVariance, 2500, 0, 5000),
	}
	if randomEffect {
		s.SigmaUDefault = uniform(paramschema.RandomEffectSTD, 1000, 0, 5000)
	}
	return s
}

// VarianceDueToRandomEffect implements AbstractMixedModelFullImplementation.
// getVarianceDueToRandomEffect: the random effect contributes
// (d(mu)/d(b1) at u=0)^2 * sigma_u^2 to prediction variance (spec §4.7).
func VarianceDueToRandomEffect(s Spec, ageYr, timeSinceBeginning float64, b []float64, sigmaU float64) float64 {
	g := s.Gradient(ageYr, timeSinceBeginning, 0, b)
	return g[0] * g[0] * sigmaU * sigmaU
}
