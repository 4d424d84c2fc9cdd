// Package coordinator implements the model-coordinator component (spec
// C8): it builds one growth-model instance per candidate form, runs one
// MCMC chain per candidate concurrently, ranks the converged candidates by
// descending log pseudo-marginal likelihood, and exposes the winner's
// prediction surface (point estimate, parameter-estimate variance, and
// Monte Carlo prediction ensembles).
//
// Grounded on MetaModel.InnerWorker/performModelSelection/fitModel
// (original_source) for the goroutine-per-candidate plus ranking shape, and
// on MetaModel.getMonteCarloPredictions/getPredictionVariance for the
// prediction surface. The per-candidate goroutine body (build schema+prior+
// blocks, run one sampler.Sampler to completion) is the Go generalization of
// InnerWorker.run's single AbstractModelImplementation.fitModel() call.
package coordinator

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/borealgrowth/metamodel/block"
	"github.com/borealgrowth/metamodel/dataset"
	"github.com/borealgrowth/metamodel/growth"
	"github.com/borealgrowth/metamodel/linalg"
	"github.com/borealgrowth/metamodel/metaerr"
	"github.com/borealgrowth/metamodel/paramschema"
	"github.com/borealgrowth/metamodel/prior"
	"github.com/borealgrowth/metamodel/sampler"
)

var log = logging.MustGetLogger("coordinator")

// Candidate names one growth-model form and an optional parameter
// configuration override (spec §6's ParamConfig; nil means "use the form's
// defaults").
type Candidate struct {
	Name    string
	Configs []paramschema.Config
}

// ComparisonRow is one line of the model-comparison table (spec §4.7 step 6,
// supplemented with the softmax Prob column per MetaModel.performModelSelection).
type ComparisonRow struct {
	Name        string
	Converged   bool
	LPML        float64 // NaN if not converged
	Probability float64 // 0 if not converged
}

// fittedModel is the read-only state published after a winning candidate's
// chain converges (spec §5: "promoted to the meta-model's read-only state").
type fittedModel struct {
	name           string
	spec           growth.Spec
	schema         *paramschema.Schema
	result         *sampler.Result
	fixedEffectIdx []int
	fixedEffectCov *mat.SymDense // immutable view, computed once at publish time
	hasRegLag      bool
	regLagIdx      int

	// Persistence-only bookkeeping: enough to rebuild spec+schema from
	// scratch via Restore without re-running the chain.
	configs               []paramschema.Config
	needsResidualVariance bool
	nBlocks               int
}

// Coordinator owns the fitted state for one (stratum group, output type)
// combination. The zero value is not ready for prediction; call Fit first.
type Coordinator struct {
	mu      sync.RWMutex
	winner  *fittedModel
	Ranking []ComparisonRow
}

// New returns an unfitted Coordinator.
func New() *Coordinator {
	return &Coordinator{}
}

// Fit runs every candidate concurrently (spec §4.7 steps 1-4), ranks the
// converged ones (step 4), and publishes the top-ranked candidate as the
// read-only prediction state (step 5). baseSeed is combined with each
// candidate's position to give every chain a distinct, deterministic RNG
// seed (spec §5: "deterministic RNG seeded per worker").
func (c *Coordinator) Fit(structure *dataset.Structure, candidates []Candidate, cfg sampler.Config, baseSeed int64) error {
	type outcome struct {
		name    string
		spec    growth.Spec
		schema  *paramschema.Schema
		configs []paramschema.Config
		result  *sampler.Result
		err     error
	}

	outcomes := make([]outcome, len(candidates))
	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(i int, cand Candidate) {
			defer wg.Done()
			spec, schema, configs, result, err := fitOne(structure, cand, cfg, baseSeed+int64(i))
			outcomes[i] = outcome{name: cand.Name, spec: spec, schema: schema, configs: configs, result: result, err: err}
		}(i, cand)
	}
	wg.Wait()

	var converged []outcome
	for _, o := range outcomes {
		if o.err != nil {
			log.Warningf("candidate %s failed to fit: %v", o.name, o.err)
			continue
		}
		if o.result != nil && o.result.Converged {
			converged = append(converged, o)
		}
	}

	sort.SliceStable(converged, func(i, j int) bool {
		return converged[i].result.LogPseudoMarginalLikelihood > converged[j].result.LogPseudoMarginalLikelihood
	})

	// Softmax over LPML, shifted by the best LPML so exp neither
	// underflows to 0 nor overflows to +Inf.
	sumProb := 0.0
	for _, o := range converged {
		sumProb += math.Exp(o.result.LogPseudoMarginalLikelihood - converged[0].result.LogPseudoMarginalLikelihood)
	}

	var ranking []ComparisonRow
	for _, o := range converged {
		prob := 0.0
		if sumProb > 0 {
			prob = math.Exp(o.result.LogPseudoMarginalLikelihood-converged[0].result.LogPseudoMarginalLikelihood) / sumProb
		}
		ranking = append(ranking, ComparisonRow{Name: o.name, Converged: true, LPML: o.result.LogPseudoMarginalLikelihood, Probability: prob})
	}
	for _, o := range outcomes {
		if o.err != nil || (o.result != nil && o.result.Converged) {
			continue
		}
		ranking = append(ranking, ComparisonRow{Name: o.name, Converged: false, LPML: math.NaN()})
	}

	c.mu.Lock()
	c.Ranking = ranking
	c.mu.Unlock()

	if len(converged) == 0 {
		return metaerr.ErrNoCandidateConverged
	}

	best := converged[0]
	c.publish(best.name, best.spec, best.schema, best.configs, best.result, len(structure.Blocks))
	log.Infof("selected model %s (LPML=%.4f)", best.name, best.result.LogPseudoMarginalLikelihood)
	return nil
}

// publish builds the read-only fittedModel view and swaps it in under the
// write lock (spec §5: "promoted to the meta-model's read-only state ...
// published so that other threads observe the final values").
func (c *Coordinator) publish(name string, spec growth.Spec, schema *paramschema.Schema, configs []paramschema.Config, result *sampler.Result, nBlocks int) {
	fm := &fittedModel{
		name:                  name,
		spec:                  spec,
		schema:                schema,
		result:                result,
		hasRegLag:             schema.HasRegLag(),
		regLagIdx:             -1,
		configs:               configs,
		needsResidualVariance: !schemaHasFixedVariance(schema),
		nBlocks:               nBlocks,
	}
	fm.fixedEffectIdx = make([]int, len(spec.FixedEffects))
	for i, n := range spec.FixedEffects {
		fm.fixedEffectIdx[i] = schema.MustIndex(n)
	}
	if fm.hasRegLag {
		fm.regLagIdx = schema.MustIndex(paramschema.RegLag)
	}
	fm.fixedEffectCov = linalg.Submatrix(result.ParameterCovariance, fm.fixedEffectIdx)

	c.mu.Lock()
	c.winner = fm
	c.mu.Unlock()
}

// schemaHasFixedVariance reports whether the schema omits sigma2_res,
// meaning the simulator supplied the residual variance directly.
func schemaHasFixedVariance(schema *paramschema.Schema) bool {
	_, ok := schema.Index(paramschema.ResidualVariance)
	return !ok
}

// Restore rebuilds a fittedModel from a previously fitted-and-persisted
// state (spec §8's "fit -> save -> load -> predict" round trip), without
// re-running the chain. It is the counterpart to Fit's publish step for the
// metamodel package's JSON unmarshaling.
func (c *Coordinator) Restore(name string, configs []paramschema.Config, needsResidualVariance, needsRegLag bool, nBlocks int, finalParameterEstimates []float64, parameterCovariance *mat.SymDense, lpml float64, thinnedSample [][]float64, ranking []ComparisonRow) error {
	spec, err := growth.Get(name)
	if err != nil {
		return err
	}
	schema, err := paramschema.Build(spec.FixedEffects, spec.HasRandomEffect, needsResidualVariance, needsRegLag, nBlocks, configs)
	if err != nil {
		return err
	}
	result := &sampler.Result{
		Converged:                   true,
		FinalParameterEstimates:     finalParameterEstimates,
		ParameterCovariance:         parameterCovariance,
		LogPseudoMarginalLikelihood: lpml,
		ThinnedSample:               thinnedSample,
	}
	c.publish(name, spec, schema, configs, result, nBlocks)
	c.mu.Lock()
	c.Ranking = ranking
	c.mu.Unlock()
	return nil
}

// fitOne builds one candidate's schema, priors, residual blocks and
// sampler, and runs its chain to completion. It never shares mutable state
// with any other candidate's goroutine (spec §5). It returns the resolved
// parameter configuration (defaults already substituted) so the caller can
// persist exactly what was used.
func fitOne(structure *dataset.Structure, cand Candidate, cfg sampler.Config, seed int64) (growth.Spec, *paramschema.Schema, []paramschema.Config, *sampler.Result, error) {
	spec, err := growth.Get(cand.Name)
	if err != nil {
		return growth.Spec{}, nil, nil, nil, err
	}

	needsResidualVariance := structure.VarCov == nil
	needsRegLag := structure.NeedsRegenerationLag()

	configs := cand.Configs
	if configs == nil {
		configs = defaultConfigs(spec, needsResidualVariance)
	}

	schema, err := paramschema.Build(spec.FixedEffects, spec.HasRandomEffect, needsResidualVariance, needsRegLag, len(structure.Blocks), configs)
	if err != nil {
		return spec, nil, configs, nil, err
	}

	priors, err := prior.Build(schema, configs)
	if err != nil {
		return spec, schema, configs, nil, err
	}

	blocks := buildResidualBlocks(structure, needsResidualVariance)
	eval := newModelEvaluator(spec, schema, blocks, needsRegLag)

	cfg.Seed = seed
	s := sampler.New(cand.Name, schema, priors, eval, cfg)
	result, err := s.Run(schema.StartingValues())
	if err != nil {
		return spec, schema, configs, nil, err
	}
	return spec, schema, configs, result, nil
}

// defaultConfigs assembles a candidate's full parameter configuration from
// its growth form's defaults plus the shared reserved-name defaults (spec
// §6: "null means use the form's defaults").
func defaultConfigs(spec growth.Spec, needsResidualVariance bool) []paramschema.Config {
	configs := spec.FixedEffectDefaults()
	configs = append(configs, spec.RhoDefault)
	if spec.HasRandomEffect {
		configs = append(configs, spec.SigmaUDefault)
	}
	if needsResidualVariance {
		configs = append(configs, spec.ResidualVarianceDefault)
	}
	return configs
}

// buildResidualBlocks turns the shared, immutable dataset.Structure into one
// freshly-allocated block.ResidualBlock per DataBlock (spec §2: "C8
// constructs one C5 instance per candidate, which owns ... a vector of C4
// blocks" — each candidate's goroutine gets its own blocks because they
// cache mutable per-parameter-vector state).
func buildResidualBlocks(structure *dataset.Structure, needsResidualVariance bool) []*block.ResidualBlock {
	blocks := make([]*block.ResidualBlock, len(structure.Blocks))
	offset := 0
	for i, db := range structure.Blocks {
		n := db.Size()
		timeSinceBeginning := make([]float64, n)
		vecY := make([]float64, n)
		for k, idx := range db.Indices {
			obs := structure.Observations[idx]
			timeSinceBeginning[k] = float64(obs.YearsSinceStart)
			vecY[k] = obs.Estimate
		}

		var fixedVarCov *mat.SymDense
		if !needsResidualVariance && structure.VarCov != nil {
			idx := make([]int, n)
			for k := range idx {
				idx[k] = offset + k
			}
			fixedVarCov = linalg.Submatrix(structure.VarCov, idx)
		}
		offset += n

		blocks[i] = block.New(db.AgeYr, timeSinceBeginning, vecY, db.NbPlots, db.InitialAgeYr, !needsResidualVariance, fixedVarCov)
	}
	return blocks
}

// modelEvaluator glues one candidate's growth.Spec, paramschema.Schema and
// block.ResidualBlock set together into the sampler.Evaluator interface —
// the Go generalization of AbstractModelImplementation.getLogLikelihood
// iterating over its DataBlockWrapper list.
type modelEvaluator struct {
	spec            growth.Spec
	schema          *paramschema.Schema
	blocks          []*block.ResidualBlock
	hasRegLag       bool
	fixedIdx        []int
	rhoIdx          int
	sigma2Idx       int // -1 if simulator-supplied variance
	regLagIdx       int // -1 if absent
	randomEffectIdx []int
}

func newModelEvaluator(spec growth.Spec, schema *paramschema.Schema, blocks []*block.ResidualBlock, hasRegLag bool) *modelEvaluator {
	e := &modelEvaluator{spec: spec, schema: schema, blocks: blocks, hasRegLag: hasRegLag, sigma2Idx: -1, regLagIdx: -1}
	e.fixedIdx = make([]int, len(spec.FixedEffects))
	for i, name := range spec.FixedEffects {
		e.fixedIdx[i] = schema.MustIndex(name)
	}
	e.rhoIdx = schema.MustIndex(paramschema.Rho)
	if idx, ok := schema.Index(paramschema.ResidualVariance); ok {
		e.sigma2Idx = idx
	}
	if hasRegLag {
		e.regLagIdx = schema.MustIndex(paramschema.RegLag)
	}
	if spec.HasRandomEffect {
		e.randomEffectIdx = make([]int, len(blocks))
		for i := range blocks {
			e.randomEffectIdx[i] = schema.MustIndex(fmt.Sprintf("u_%d", i))
		}
	}
	return e
}

// BlockLogLikelihoods implements sampler.Evaluator.
func (e *modelEvaluator) BlockLogLikelihoods(parms []float64) ([]float64, error) {
	rho := parms[e.rhoIdx]
	sigma2Res := 0.0
	if e.sigma2Idx >= 0 {
		sigma2Res = parms[e.sigma2Idx]
	}
	regLag := 0.0
	if e.hasRegLag {
		regLag = parms[e.regLagIdx]
	}

	b := make([]float64, len(e.fixedIdx))
	for i, idx := range e.fixedIdx {
		b[i] = parms[idx]
	}

	out := make([]float64, len(e.blocks))
	for i, blk := range e.blocks {
		if err := blk.UpdateCovMat(rho, sigma2Res); err != nil {
			return nil, err
		}
		u := 0.0
		if e.spec.HasRandomEffect {
			u = parms[e.randomEffectIdx[i]]
		}
		pred := make([]float64, blk.Size())
		for k := range pred {
			pred[k] = growth.PredictWithLag(e.spec, blk.AgeYr[k], blk.TimeSinceBeginning[k], u, b, regLag, e.hasRegLag)
		}
		ll, err := blk.LogLikelihood(pred)
		if err != nil {
			return nil, err
		}
		out[i] = ll
	}
	return out, nil
}

// PredictedPoint is one row of the deterministic prediction surface (spec
// §6's predictions() table).
type PredictedPoint struct {
	AgeYr    float64
	Pred     float64
	Variance float64 // only meaningful when requested
}

// VarianceOutput selects what predictionVariance computes (spec §6).
type VarianceOutput int

const (
	VarianceNone VarianceOutput = iota
	VariancePointEstimate
	VariancePointEstimateWithRandomEffect
)

// Predict returns the deterministic point estimate at u=0 with regeneration
// lag applied (spec §4.7 item "predict").
func (c *Coordinator) Predict(ageYr, timeSinceBeginning float64) (float64, error) {
	c.mu.RLock()
	fm := c.winner
	c.mu.RUnlock()
	if fm == nil {
		return 0, metaerr.ErrNotFitted
	}
	b := fixedEffectValues(fm)
	regLag := 0.0
	if fm.hasRegLag {
		regLag = fm.result.FinalParameterEstimates[fm.regLagIdx]
	}
	return growth.PredictWithLag(fm.spec, ageYr, timeSinceBeginning, 0, b, regLag, fm.hasRegLag), nil
}

// PredictionVariance implements spec §4.7's predictionVariance:
// g^T Sigma_fixed g over the fixed-effects gradient at the effective age,
// plus the random-effect contribution when requested and the model is
// mixed. Uses the immutable fixedEffectCov view published at fit time, so
// no mutex is needed beyond the one already guarding the winner pointer
// itself (spec §5's critical-section requirement).
func (c *Coordinator) PredictionVariance(ageYr, timeSinceBeginning float64, includeRandomEffect bool) (float64, error) {
	c.mu.RLock()
	fm := c.winner
	c.mu.RUnlock()
	if fm == nil {
		return 0, metaerr.ErrNotFitted
	}
	b := fixedEffectValues(fm)
	regLag := 0.0
	if fm.hasRegLag {
		regLag = fm.result.FinalParameterEstimates[fm.regLagIdx]
	}
	effectiveAge := ageYr
	if fm.hasRegLag {
		effectiveAge -= regLag
		if effectiveAge <= 0 {
			return 0, nil
		}
	}

	g := fm.spec.Gradient(effectiveAge, timeSinceBeginning, 0, b)
	gv := mat.NewVecDense(len(g), g)
	var tmp mat.VecDense
	tmp.MulVec(fm.fixedEffectCov, gv)
	variance := mat.Dot(gv, &tmp)

	if includeRandomEffect && fm.spec.HasRandomEffect {
		sigmaU := fm.result.FinalParameterEstimates[fm.schema.MustIndex(paramschema.RandomEffectSTD)]
		variance += growth.VarianceDueToRandomEffect(fm.spec, effectiveAge, timeSinceBeginning, b, sigmaU)
	}
	return variance, nil
}

// Predictions computes the table{AgeYr, Pred, Variance?} surface for a list
// of ages (spec §6).
func (c *Coordinator) Predictions(ages []float64, timeSinceBeginning float64, varianceOutput VarianceOutput) ([]PredictedPoint, error) {
	rows := make([]PredictedPoint, len(ages))
	for i, age := range ages {
		pred, err := c.Predict(age, timeSinceBeginning)
		if err != nil {
			return nil, err
		}
		rows[i] = PredictedPoint{AgeYr: age, Pred: pred}
		if varianceOutput != VarianceNone {
			v, err := c.PredictionVariance(age, timeSinceBeginning, varianceOutput == VariancePointEstimateWithRandomEffect)
			if err != nil {
				return nil, err
			}
			rows[i].Variance = v
		}
	}
	return rows, nil
}

// MonteCarloRow is one row of the Monte Carlo prediction ensemble (spec
// §6's monteCarloPredictions() table).
type MonteCarloRow struct {
	RealizationID int
	SubjectID     int
	AgeYr         float64
	Pred          float64
}

// MonteCarloPredictions draws nbRealizations parameter vectors from
// N(finalParameterEstimates, parameterCovariance) over the fixed-effects
// subspace and, for mixed models, nbSubjects per-subject random-effect
// draws from N(0, sigma_u^2), evaluating the prediction at every
// (realization, subject, age) combination (spec §4.7's monteCarloPredictions,
// grounded on MetaModel.getMonteCarloPredictions). nbSubjects == 0 or
// nbRealizations == 0 disables the corresponding source of variability and
// collapses that dimension to a single deterministic row, matching the
// original's ns/nr == 1 fallback and spec §8 scenario 2's "zero
// variability" fixture.
func (c *Coordinator) MonteCarloPredictions(ages []float64, timeSinceBeginning float64, nbSubjects, nbRealizations int) ([]MonteCarloRow, error) {
	c.mu.RLock()
	fm := c.winner
	c.mu.RUnlock()
	if fm == nil {
		return nil, metaerr.ErrNotFitted
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	nr := nbRealizations
	if nr <= 0 {
		nr = 1
	}
	ns := nbSubjects
	if ns <= 0 {
		ns = 1
	}

	mean := make([]float64, len(fm.fixedEffectIdx))
	for i, idx := range fm.fixedEffectIdx {
		mean[i] = fm.result.FinalParameterEstimates[idx]
	}

	var gen *distmv.Normal
	if nbRealizations > 0 {
		g, ok := distmv.NewNormal(mean, fm.fixedEffectCov, rng)
		if !ok {
			return nil, fmt.Errorf("coordinator: fixed-effects covariance is not positive definite")
		}
		gen = g
	}

	sigmaU := 0.0
	if fm.spec.HasRandomEffect {
		sigmaU = fm.result.FinalParameterEstimates[fm.schema.MustIndex(paramschema.RandomEffectSTD)]
	}
	regLag := 0.0
	if fm.hasRegLag {
		regLag = fm.result.FinalParameterEstimates[fm.regLagIdx]
	}

	rows := make([]MonteCarloRow, 0, nr*ns*len(ages))
	for r := 0; r < nr; r++ {
		b := mean
		if nbRealizations > 0 {
			b = gen.Rand(nil)
		}
		for subj := 0; subj < ns; subj++ {
			u := 0.0
			if nbSubjects > 0 && fm.spec.HasRandomEffect {
				u = distuv.Normal{Mu: 0, Sigma: sigmaU, Src: rng}.Rand()
			}
			for _, age := range ages {
				pred := growth.PredictWithLag(fm.spec, age, timeSinceBeginning, u, b, regLag, fm.hasRegLag)
				rows = append(rows, MonteCarloRow{RealizationID: r, SubjectID: subj, AgeYr: age, Pred: pred})
			}
		}
	}
	return rows, nil
}

func fixedEffectValues(fm *fittedModel) []float64 {
	b := make([]float64, len(fm.fixedEffectIdx))
	for i, idx := range fm.fixedEffectIdx {
		b[i] = fm.result.FinalParameterEstimates[idx]
	}
	return b
}

// HasConverged reports whether Fit published a winning candidate.
func (c *Coordinator) HasConverged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.winner != nil
}

// WinnerName returns the name of the selected candidate, or "" if unfitted.
func (c *Coordinator) WinnerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return ""
	}
	return c.winner.name
}

// FinalParameterEstimates returns a copy of the winning candidate's
// posterior mean parameter vector, or nil if unfitted.
func (c *Coordinator) FinalParameterEstimates() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return nil
	}
	return append([]float64(nil), c.winner.result.FinalParameterEstimates...)
}

// WinnerConfigs returns the parameter configuration actually used to fit
// the winning candidate (defaults already resolved), or nil if unfitted.
// Needed by the metamodel package's JSON persistence so a restored model
// can rebuild its schema without re-running the chain.
func (c *Coordinator) WinnerConfigs() []paramschema.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return nil
	}
	return append([]paramschema.Config(nil), c.winner.configs...)
}

// WinnerNeedsResidualVariance reports whether the winning candidate
// estimated sigma2_res rather than taking it from the simulator.
func (c *Coordinator) WinnerNeedsResidualVariance() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.winner != nil && c.winner.needsResidualVariance
}

// WinnerNeedsRegLag reports whether the winning candidate includes the
// regeneration-lag nuisance parameter.
func (c *Coordinator) WinnerNeedsRegLag() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.winner != nil && c.winner.hasRegLag
}

// WinnerNBlocks returns the number of residual blocks the winning
// candidate was fitted against.
func (c *Coordinator) WinnerNBlocks() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return 0
	}
	return c.winner.nBlocks
}

// ParameterCovariance returns the winning candidate's full posterior
// parameter covariance matrix, or nil if unfitted.
func (c *Coordinator) ParameterCovariance() *mat.SymDense {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return nil
	}
	return c.winner.result.ParameterCovariance
}

// LogPseudoMarginalLikelihood returns the winning candidate's LPML, or NaN
// if unfitted.
func (c *Coordinator) LogPseudoMarginalLikelihood() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return math.NaN()
	}
	return c.winner.result.LogPseudoMarginalLikelihood
}

// ThinnedSample returns the winning candidate's thinned posterior sample,
// or nil if unfitted or if it was dropped for a light persistence form.
func (c *Coordinator) ThinnedSample() [][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.winner == nil {
		return nil
	}
	return c.winner.result.ThinnedSample
}
