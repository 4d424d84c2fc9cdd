// metafit is the command-line entry point for fitting one meta-model from
// a JSON fixture of per-initial-age result sets.
//
// Basic usage:
//
//	metafit --output AliveVolume_AllSpecies fixture.json
//
// To see all the options run:
//
//	metafit --help
//
// Grounded on godon/godon.go's kingpin flag set, seed/log setup and
// "print summary, optionally write a JSON file" shape.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/borealgrowth/metamodel/coordinator"
	"github.com/borealgrowth/metamodel/dataset"
	"github.com/borealgrowth/metamodel/diagnostics"
	"github.com/borealgrowth/metamodel/growth"
	"github.com/borealgrowth/metamodel/metamodel"
	"github.com/borealgrowth/metamodel/sampler"
)

var version = "metafit dev build"

var log = logging.MustGetLogger("metafit")
var formatter = logging.MustStringFormatter(`%{time:15:04:05.000} %{level:.4s} %{message}`)

var (
	app = kingpin.New("metafit", "forest-stand growth meta-model fitting engine").Version(version)

	fixtureFileName = app.Arg("fixture", "JSON fixture of per-initial-age result sets").Required().ExistingFile()
	outputType      = app.Flag("output", "output type to fit (e.g. AliveVolume_AllSpecies)").Required().String()
	stratumGroup    = app.Flag("group", "stratum group name").Default("default").String()

	forms = app.Flag("form", "candidate growth-model form name, repeatable (default: every registered form)").Strings()

	nbInitialGrid          = app.Flag("initgrid", "number of pre-chain grid-search draws").Default("0").Int()
	nbBurnIn               = app.Flag("burnin", "number of leading samples discarded").Default("1000").Int()
	nbAcceptedRealizations = app.Flag("accepted", "total accepted proposals required to stop").Default("11000").Int()
	oneEach                = app.Flag("thin", "thinning stride on post-burn-in accepted samples").Default("5").Int()
	coefVar                = app.Flag("coefvar", "proposal standard deviation as a fraction of current value").Default("0.1").Float64()
	accRateMin             = app.Flag("accmin", "minimum acceptance rate for convergence").Default("0.15").Float64()
	accRateMax             = app.Flag("accmax", "maximum acceptance rate for convergence").Default("0.45").Float64()
	repPeriod              = app.Flag("report", "log a status line every N iterations, accepted or not (0 disables)").Default("1000").Int()
	seed                   = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()

	predictAges = app.Flag("predict", "comma-separated ages to report predictions for").String()

	jsonOut        = app.Flag("json", "write the full persisted model to this file").String()
	diagnosticsDir = app.Flag("diagnostics", "write trace/posterior PNGs for the winner's fixed effects to this directory").String()

	checkpointDB = app.Flag("checkpoint", "bbolt database file for chain checkpointing; resumes a matching candidate's chain if present").String()

	outLogF  = app.Flag("log", "write log to a file instead of stderr").String()
	logLevel = app.Flag("loglevel", "set loglevel ('critical','error','warning','notice','info','debug')").
			Default("notice").
			Enum("critical", "error", "warning", "notice", "info", "debug")
)

// fixtureResultSet is the in-memory ResultSet type read from the JSON
// fixture file; the real simulator-backed ResultSet is an external
// collaborator (spec §1) this CLI has no access to.
type fixtureResultSet struct {
	InitialAgeYr          int          `json:"initialAgeYr"`
	OutputTypeNames        []string     `json:"outputTypes"`
	Rows                   []dataset.Row `json:"rows"`
	Plots                  int          `json:"nbPlots"`
	Realizations           int          `json:"nbRealizations"`
	ClimateChangeScenarioV string       `json:"climateChangeScenario"`
	GrowthModelV           string       `json:"growthModel"`
}

func (f *fixtureResultSet) OutputTypes() []string         { return f.OutputTypeNames }
func (f *fixtureResultSet) DataSet() []dataset.Row        { return f.Rows }
func (f *fixtureResultSet) NbPlots() int                  { return f.Plots }
func (f *fixtureResultSet) NbRealizations() int           { return f.Realizations }
func (f *fixtureResultSet) ClimateChangeScenario() string { return f.ClimateChangeScenarioV }
func (f *fixtureResultSet) GrowthModel() string           { return f.GrowthModelV }
func (f *fixtureResultSet) IsCompatible(other dataset.ResultSet) bool {
	o, ok := other.(*fixtureResultSet)
	if !ok {
		return false
	}
	return f.GrowthModelV == o.GrowthModelV &&
		f.Realizations == o.Realizations &&
		f.ClimateChangeScenarioV == o.ClimateChangeScenarioV
}

// ComputeVarCovErrorTerm always returns nil: any per-row variance in the
// JSON fixture is ignored, so sigma2_res is always estimated for
// CLI-driven fits.
func (f *fixtureResultSet) ComputeVarCovErrorTerm(outputType string) *mat.SymDense { return nil }

func loadFixture(path string) ([]*fixtureResultSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []*fixtureResultSet
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("metafit: parsing fixture %s: %w", path, err)
	}
	return entries, nil
}

func parseAges(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ages := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("metafit: invalid age %q: %w", p, err)
		}
		ages[i] = v
	}
	return ages, nil
}

func candidateList() []coordinator.Candidate {
	names := *forms
	if len(names) == 0 {
		names = growth.Names()
	}
	candidates := make([]coordinator.Candidate, len(names))
	for i, name := range names {
		candidates[i] = coordinator.Candidate{Name: name}
	}
	return candidates
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logging.SetFormatter(formatter)
	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error creating log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "metafit")
	logging.SetLevel(level, "metamodel")
	logging.SetLevel(level, "coordinator")
	logging.SetLevel(level, "sampler")

	log.Info(version)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("random seed from time")
	}
	log.Infof("random seed=%d", *seed)
	rand.Seed(*seed)

	entries, err := loadFixture(*fixtureFileName)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("loaded %d result sets from %s", len(entries), *fixtureFileName)

	m := metamodel.New(*stratumGroup)
	for _, e := range entries {
		if err := m.AddResultSet(e.InitialAgeYr, e); err != nil {
			log.Fatal(err)
		}
	}

	cfg := sampler.Config{
		NbInitialGrid:          *nbInitialGrid,
		NbBurnIn:               *nbBurnIn,
		NbAcceptedRealizations: *nbAcceptedRealizations,
		OneEach:                *oneEach,
		CoefVar:                *coefVar,
		AcceptanceRateMin:      *accRateMin,
		AcceptanceRateMax:      *accRateMax,
		RepPeriod:              *repPeriod,
		Seed:                   *seed,
	}

	if *checkpointDB != "" {
		db, err := bolt.Open(*checkpointDB, 0600, nil)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close()
		cfg.Checkpoint = sampler.NewCheckpointer(db)
		log.Infof("checkpointing to %s", *checkpointDB)
	}

	status := m.Fit(*outputType, candidateList(), cfg)
	fmt.Println(status)
	if status != "DONE" {
		os.Exit(1)
	}

	fmt.Println(m.MetadataSummary())
	for _, row := range m.Ranking() {
		fmt.Printf("%-55s converged=%-5v lpml=%10.4f prob=%.4f\n", row.Name, row.Converged, row.LPML, row.Probability)
	}

	ages, err := parseAges(*predictAges)
	if err != nil {
		log.Fatal(err)
	}
	if len(ages) > 0 {
		rows, err := m.Predictions(ages, 0, coordinator.VariancePointEstimate)
		if err != nil {
			log.Fatal(err)
		}
		for _, r := range rows {
			fmt.Printf("age=%-8.2f pred=%-12.6f variance=%.6f\n", r.AgeYr, r.Pred, r.Variance)
		}
	}

	if *jsonOut != "" {
		data, err := m.MarshalFull()
		if err != nil {
			log.Error(err)
		} else if err := os.WriteFile(*jsonOut, data, 0644); err != nil {
			log.Error("writing json output:", err)
		}
	}

	if *diagnosticsDir != "" {
		if err := os.MkdirAll(*diagnosticsDir, 0755); err != nil {
			log.Error("creating diagnostics directory:", err)
		} else {
			writeDiagnostics(m, *diagnosticsDir)
		}
	}
}

func writeDiagnostics(m *metamodel.MetaModel, dir string) {
	sample := m.ThinnedSample()
	if len(sample) == 0 {
		log.Warning("no thinned sample available for diagnostics")
		return
	}
	n := len(sample[0])
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("param_%d", i)
		tracePath := fmt.Sprintf("%s/trace_%d.png", dir, i)
		if err := diagnostics.TracePlot(sample, i, name, tracePath); err != nil {
			log.Error(err)
		}
		histPath := fmt.Sprintf("%s/posterior_%d.png", dir, i)
		if err := diagnostics.PosteriorHistogram(sample, i, name, histPath); err != nil {
			log.Error(err)
		}
	}
}
