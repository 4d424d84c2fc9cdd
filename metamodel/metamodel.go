// Package metamodel is the per-stratum-group facade (the original's
// MetaModel class, minus its XML serializer/registry): it accepts one
// ResultSet per initial age, assembles the hierarchical data structure,
// drives the coordinator's concurrent candidate fit, and exposes the
// prediction surface plus a full/light JSON persistence round trip.
//
// Grounded on MetaModel.java (original_source): addScriptResult,
// getPossibleOutputTypes, fitModel's "DONE"/"ERROR: <msg>" return
// convention, exportInitialDataSet (kept pre-fit regardless of fit
// outcome), and MetaDataHelper.generate() for the metadata one-liner.
package metamodel

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/op/go-logging"
	"gonum.org/v1/gonum/mat"

	"github.com/borealgrowth/metamodel/coordinator"
	"github.com/borealgrowth/metamodel/dataset"
	"github.com/borealgrowth/metamodel/metaerr"
	"github.com/borealgrowth/metamodel/paramschema"
	"github.com/borealgrowth/metamodel/sampler"
)

var log = logging.MustGetLogger("metamodel")

// resultSetEntry pairs an initial age with the ResultSet contributed for
// it, in insertion order.
type resultSetEntry struct {
	InitialAgeYr int
	RS           dataset.ResultSet
}

// MetaModel owns the lifecycle for one stratum group: accept ResultSets,
// fit one output type at a time, predict, persist. The metadata fields are
// opaque to the fitting engine (spec §6's "persisted form") and exist only
// to feed MetadataSummary.
type MetaModel struct {
	mu sync.RWMutex

	StratumGroup        string
	GeoDomain           string
	DataSource          string
	DataSourceYears     string
	ClimateChangeOption string
	GrowthModel         string
	Upscaling           string
	LeadingSpecies      string
	NbRealizations      int
	NbPlots             int

	entries      []resultSetEntry
	outputType   string
	structure    *dataset.Structure
	coord        *coordinator.Coordinator
	fitModelName string
	timeStamp    string
}

// New returns an empty MetaModel for the given stratum group.
func New(stratumGroup string) *MetaModel {
	return &MetaModel{StratumGroup: stratumGroup}
}

// AddResultSet appends a ResultSet for the given initial age (spec §3's
// "accepts one ResultSet per initial age, appended while compatible").
// Adding invalidates any prior fit, matching addScriptResult's reset of
// the model's fitted state whenever the underlying data changes.
func (m *MetaModel) AddResultSet(initialAgeYr int, rs dataset.ResultSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) > 0 && !rs.IsCompatible(m.entries[0].RS) {
		return fmt.Errorf("initial age %d: %w", initialAgeYr, metaerr.ErrIncompatibleScriptResult)
	}
	if len(m.entries) == 0 {
		m.ClimateChangeOption = rs.ClimateChangeScenario()
		m.GrowthModel = rs.GrowthModel()
		m.NbRealizations = rs.NbRealizations()
		m.NbPlots = rs.NbPlots()
	}

	m.entries = append(m.entries, resultSetEntry{InitialAgeYr: initialAgeYr, RS: rs})
	m.coord = nil
	m.structure = nil
	m.outputType = ""
	m.fitModelName = ""
	return nil
}

// PossibleOutputTypes returns the union of every added ResultSet's output
// types, in first-seen order (spec §8 scenario 3).
func (m *MetaModel) PossibleOutputTypes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, e := range m.entries {
		for _, ot := range e.RS.OutputTypes() {
			if !seen[ot] {
				seen[ot] = true
				out = append(out, ot)
			}
		}
	}
	return out
}

// Fit assembles the hierarchical data structure for outputType and runs
// the coordinator's concurrent candidate fit (spec §6's fit entry point).
// It returns "DONE" on success or "ERROR: <msg>" otherwise, and stores the
// assembled structure for FinalDataSet regardless of whether fitting
// itself converges, matching exportInitialDataSet's pre-fit export.
func (m *MetaModel) Fit(outputType string, candidates []coordinator.Candidate, cfg sampler.Config) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	rsList := make([]struct {
		InitialAgeYr int
		RS           dataset.ResultSet
	}, len(m.entries))
	for i, e := range m.entries {
		rsList[i].InitialAgeYr = e.InitialAgeYr
		rsList[i].RS = e.RS
	}

	structure, err := dataset.Build(rsList, outputType)
	if err != nil {
		log.Warningf("%s: failed to build data structure for output type %s: %v", m.StratumGroup, outputType, err)
		return "ERROR: " + err.Error()
	}
	m.structure = structure

	coord := coordinator.New()
	baseSeed := cfg.Seed
	if baseSeed == 0 {
		baseSeed = time.Now().UnixNano()
	}
	if err := coord.Fit(structure, candidates, cfg, baseSeed); err != nil {
		m.coord = coord
		log.Warningf("%s: fit failed for output type %s: %v", m.StratumGroup, outputType, err)
		return "ERROR: " + err.Error()
	}

	m.coord = coord
	m.outputType = outputType
	m.fitModelName = coord.WinnerName()
	m.timeStamp = time.Now().UTC().Format(time.RFC3339)
	log.Infof("%s: fit DONE, winner %s", m.StratumGroup, m.fitModelName)
	return "DONE"
}

// HasConverged reports whether the most recent Fit published a winner.
func (m *MetaModel) HasConverged() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coord != nil && m.coord.HasConverged()
}

// ThinnedSample returns the winning candidate's thinned posterior sample,
// or nil if unfitted. Used by diagnostics callers; not part of the
// persisted light form.
func (m *MetaModel) ThinnedSample() [][]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.coord == nil {
		return nil
	}
	return m.coord.ThinnedSample()
}

// Ranking returns the most recent comparison table, or nil if never fitted.
func (m *MetaModel) Ranking() []coordinator.ComparisonRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.coord == nil {
		return nil
	}
	return m.coord.Ranking
}

// Predict delegates to the fitted coordinator's deterministic point
// estimate.
func (m *MetaModel) Predict(ageYr, timeSinceBeginning float64) (float64, error) {
	coord := m.fittedCoordinator()
	if coord == nil {
		return 0, metaerr.ErrNotFitted
	}
	return coord.Predict(ageYr, timeSinceBeginning)
}

// Predictions delegates to the fitted coordinator's prediction table.
func (m *MetaModel) Predictions(ages []float64, timeSinceBeginning float64, varianceOutput coordinator.VarianceOutput) ([]coordinator.PredictedPoint, error) {
	coord := m.fittedCoordinator()
	if coord == nil {
		return nil, metaerr.ErrNotFitted
	}
	return coord.Predictions(ages, timeSinceBeginning, varianceOutput)
}

// MonteCarloPredictions delegates to the fitted coordinator's Monte Carlo
// ensemble.
func (m *MetaModel) MonteCarloPredictions(ages []float64, timeSinceBeginning float64, nbSubjects, nbRealizations int) ([]coordinator.MonteCarloRow, error) {
	coord := m.fittedCoordinator()
	if coord == nil {
		return nil, metaerr.ErrNotFitted
	}
	return coord.MonteCarloPredictions(ages, timeSinceBeginning, nbSubjects, nbRealizations)
}

func (m *MetaModel) fittedCoordinator() *coordinator.Coordinator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.coord
}

// FinalDataSet returns the observation vector assembled by the most recent
// Fit call, or nil if Fit has never succeeded in assembling the structure
// (spec §6's exportInitialDataSet precedent; available even when the
// MCMC itself failed to converge).
func (m *MetaModel) FinalDataSet() []dataset.Observation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.structure == nil {
		return nil
	}
	return append([]dataset.Observation(nil), m.structure.Observations...)
}

// MetadataSummary produces the one-line metadata string carried alongside
// the persisted form (spec §6), grounded on MetaDataHelper.generate().
func (m *MetaModel) MetadataSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("geoDomain=%s dataSource=%s stratumGroup=%s fitModel=%s outputType=%s timeStamp=%s",
		m.GeoDomain, m.DataSource, m.StratumGroup, m.fitModelName, m.outputType, m.timeStamp)
}

// symMatrixJSON is the wire form for a mat.SymDense: row count plus its
// full (redundant but trivially decodable) dense data, matching the
// sampler checkpoint's plain encoding/json use for numeric payloads rather
// than a binary matrix format.
type symMatrixJSON struct {
	N    int       `json:"n"`
	Data []float64 `json:"data"`
}

func symToJSON(s *mat.SymDense) symMatrixJSON {
	if s == nil {
		return symMatrixJSON{}
	}
	n := s.SymmetricDim()
	data := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			data[i*n+j] = s.At(i, j)
		}
	}
	return symMatrixJSON{N: n, Data: data}
}

func symFromJSON(j symMatrixJSON) *mat.SymDense {
	if j.N == 0 {
		return nil
	}
	s := mat.NewSymDense(j.N, nil)
	for i := 0; i < j.N; i++ {
		for col := i; col < j.N; col++ {
			s.SetSym(i, col, j.Data[i*j.N+col])
		}
	}
	return s
}

// persistedMetaModel is the JSON wire form shared by the full and light
// persistence variants (spec §8's "fit -> save -> load -> predict" and
// "light version round-trip" round-trip laws). Light simply omits
// ThinnedSample.
type persistedMetaModel struct {
	StratumGroup        string `json:"stratumGroup"`
	GeoDomain           string `json:"geoDomain"`
	DataSource          string `json:"dataSource"`
	DataSourceYears     string `json:"dataSourceYears"`
	ClimateChangeOption string `json:"climateChangeOption"`
	GrowthModel         string `json:"growthModel"`
	Upscaling           string `json:"upscaling"`
	LeadingSpecies      string `json:"leadingSpecies"`
	NbRealizations      int    `json:"nbRealizations"`
	NbPlots             int    `json:"nbPlots"`

	OutputType   string `json:"outputType"`
	FitModelName string `json:"fitModel"`
	TimeStamp    string `json:"timeStamp"`

	Configs                 []paramschema.Config        `json:"configs"`
	NeedsResidualVariance   bool                        `json:"needsResidualVariance"`
	NeedsRegLag             bool                        `json:"needsRegLag"`
	NBlocks                 int                         `json:"nBlocks"`
	FinalParameterEstimates []float64                   `json:"finalParameterEstimates"`
	ParameterCovariance     symMatrixJSON               `json:"parameterCovariance"`
	LPML                    float64                     `json:"lpml"`
	ThinnedSample           [][]float64                 `json:"thinnedSample,omitempty"`
	Ranking                 []coordinator.ComparisonRow `json:"ranking"`
}

func (m *MetaModel) toPersisted(includeSample bool) (persistedMetaModel, error) {
	if m.coord == nil || !m.coord.HasConverged() {
		return persistedMetaModel{}, metaerr.ErrNotFitted
	}
	p := persistedMetaModel{
		StratumGroup:            m.StratumGroup,
		GeoDomain:               m.GeoDomain,
		DataSource:              m.DataSource,
		DataSourceYears:         m.DataSourceYears,
		ClimateChangeOption:     m.ClimateChangeOption,
		GrowthModel:             m.GrowthModel,
		Upscaling:               m.Upscaling,
		LeadingSpecies:          m.LeadingSpecies,
		NbRealizations:          m.NbRealizations,
		NbPlots:                 m.NbPlots,
		OutputType:              m.outputType,
		FitModelName:            m.fitModelName,
		TimeStamp:               m.timeStamp,
		Configs:                 m.coord.WinnerConfigs(),
		NeedsResidualVariance:   m.coord.WinnerNeedsResidualVariance(),
		NeedsRegLag:             m.coord.WinnerNeedsRegLag(),
		NBlocks:                 m.coord.WinnerNBlocks(),
		FinalParameterEstimates: m.coord.FinalParameterEstimates(),
		ParameterCovariance:     symToJSON(m.coord.ParameterCovariance()),
		LPML:                    m.coord.LogPseudoMarginalLikelihood(),
		Ranking:                 m.coord.Ranking,
	}
	if includeSample {
		p.ThinnedSample = m.coord.ThinnedSample()
	}
	return p, nil
}

// MarshalFull serializes the full persisted form, retaining the thinned
// MCMC sample (spec §3's "full" lifecycle form).
func (m *MetaModel) MarshalFull() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.toPersisted(true)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// MarshalLight serializes the light persisted form, dropping the thinned
// MCMC sample but keeping the point estimate and covariance (spec §3's
// "light" lifecycle form).
func (m *MetaModel) MarshalLight() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, err := m.toPersisted(false)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// UnmarshalMetaModel reconstructs a MetaModel from either persisted form
// without re-running any MCMC chain, via coordinator.Restore. It works
// identically for full and light payloads: the light form simply has a
// nil ThinnedSample, which Restore accepts.
func UnmarshalMetaModel(data []byte) (*MetaModel, error) {
	var p persistedMetaModel
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	m := &MetaModel{
		StratumGroup:        p.StratumGroup,
		GeoDomain:           p.GeoDomain,
		DataSource:          p.DataSource,
		DataSourceYears:     p.DataSourceYears,
		ClimateChangeOption: p.ClimateChangeOption,
		GrowthModel:         p.GrowthModel,
		Upscaling:           p.Upscaling,
		LeadingSpecies:      p.LeadingSpecies,
		NbRealizations:      p.NbRealizations,
		NbPlots:             p.NbPlots,
		outputType:          p.OutputType,
		fitModelName:        p.FitModelName,
		timeStamp:           p.TimeStamp,
	}

	coord := coordinator.New()
	if err := coord.Restore(p.FitModelName, p.Configs, p.NeedsResidualVariance, p.NeedsRegLag, p.NBlocks,
		p.FinalParameterEstimates, symFromJSON(p.ParameterCovariance), p.LPML, p.ThinnedSample, p.Ranking); err != nil {
		return nil, err
	}
	m.coord = coord
	return m, nil
}
