// Package dataset implements the hierarchical data structure component
// (spec C3): it joins the per-initial-age ResultSets contributed by the
// simulator into one global vector of observations, grouped into ordered
// DataBlocks by (initialAge, outputType), and assembles the block-diagonal
// residual covariance when the simulator supplies estimator variance.
//
// Grounded on AbstractModelImplementation's getDataStructureReady/
// getVarCovReady (original_source) and on the teacher's table-of-rows style
// in codon/codon_sequences.go.
package dataset

import (
	"fmt"

	"github.com/borealgrowth/metamodel/linalg"
	"github.com/borealgrowth/metamodel/metaerr"
	"gonum.org/v1/gonum/mat"
)

// Row is one record of a ResultSet's data table (spec §6).
type Row struct {
	DateYr                int
	OutputType            string
	Estimate              float64
	Variance              float64
	HasVariance           bool
	NbPlots               int
	VarianceEstimatorType string
}

// ResultSet is the external input contract (spec §6): one per initial age.
type ResultSet interface {
	OutputTypes() []string
	DataSet() []Row
	NbPlots() int
	NbRealizations() int
	ClimateChangeScenario() string
	GrowthModel() string
	IsCompatible(other ResultSet) bool
	// ComputeVarCovErrorTerm returns the block-diagonal residual covariance
	// for the named output type, or nil if variance is unavailable.
	ComputeVarCovErrorTerm(outputType string) *mat.SymDense
}

// Observation is one row of the global observation vector (spec §3):
// initialAge, years since simulation start, outputType, estimate, plot
// count. Stratum age is InitialAgeYr + YearsSinceStart.
type Observation struct {
	InitialAgeYr     int
	YearsSinceStart  int
	OutputType       string
	Estimate         float64
	NbPlots          int
}

// AgeYr returns the stratum age of this observation.
func (o Observation) AgeYr() float64 {
	return float64(o.InitialAgeYr + o.YearsSinceStart)
}

// DataBlock is a contiguous group of observations sharing
// (initialAge, outputType) (spec §3).
type DataBlock struct {
	InitialAgeYr int
	OutputType   string
	Indices      []int // row indices into the global observation vector
	AgeYr        []float64
	NbPlots      int
}

// Size returns the number of repeated measurements in this block.
func (b *DataBlock) Size() int { return len(b.Indices) }

// entry pairs an initial age with the ResultSet contributed for it,
// preserving the order in which ResultSets were added (spec §4.2 step 3:
// "preserving per-ResultSet order").
type entry struct {
	initialAge int
	rs         ResultSet
}

// Structure is the assembled hierarchical data structure for one output
// type: the global observation vector, the ordered DataBlocks that
// partition it, and (if available) the block-diagonal residual covariance.
type Structure struct {
	OutputType         string
	Observations       []Observation
	Blocks             []*DataBlock
	MinimumStratumAgeYr int
	VarCov             *mat.SymDense // nil if variance is unavailable
}

// Build assembles a Structure from an ordered list of (initialAge,
// ResultSet) contributions for the given outputType (spec §4.2).
//
// Failure modes: outputType absent from every ResultSet -> UnknownOutputType;
// a later ResultSet incompatible with an earlier one -> IncompatibleScriptResult
// (callers are expected to have already checked this via IsCompatible before
// appending, but Build re-validates defensively).
func Build(resultSets []struct {
	InitialAgeYr int
	RS           ResultSet
}, outputType string) (*Structure, error) {
	entries := make([]entry, 0, len(resultSets))
	for _, rs := range resultSets {
		entries = append(entries, entry{initialAge: rs.InitialAgeYr, rs: rs.RS})
	}

	if err := checkCompatibility(entries); err != nil {
		return nil, err
	}

	found := false
	for _, e := range entries {
		for _, ot := range e.rs.OutputTypes() {
			if ot == outputType {
				found = true
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", outputType, metaerr.ErrUnknownOutputType)
	}

	var observations []Observation
	// blockIndex maps (initialAge, outputType) to the DataBlock being built,
	// preserving first-seen order via blockOrder.
	type blockKey struct {
		age int
		ot  string
	}
	blockIndex := make(map[blockKey]*DataBlock)
	var blockOrder []*DataBlock

	for _, e := range entries {
		for _, row := range e.rs.DataSet() {
			if row.OutputType != outputType {
				continue
			}
			obs := Observation{
				InitialAgeYr:    e.initialAge,
				YearsSinceStart: row.DateYr,
				OutputType:      row.OutputType,
				Estimate:        row.Estimate,
				NbPlots:         row.NbPlots,
			}
			idx := len(observations)
			observations = append(observations, obs)

			key := blockKey{age: e.initialAge, ot: row.OutputType}
			db, ok := blockIndex[key]
			if !ok {
				db = &DataBlock{InitialAgeYr: e.initialAge, OutputType: row.OutputType, NbPlots: row.NbPlots}
				blockIndex[key] = db
				blockOrder = append(blockOrder, db)
			}
			db.Indices = append(db.Indices, idx)
			db.AgeYr = append(db.AgeYr, obs.AgeYr())
		}
	}

	minAge := int(^uint(0) >> 1) // max int
	for _, db := range blockOrder {
		if db.InitialAgeYr < minAge {
			minAge = db.InitialAgeYr
		}
	}

	var varCov *mat.SymDense
	var blocks []*mat.SymDense
	anyMissing := false
	for _, e := range entries {
		vc := e.rs.ComputeVarCovErrorTerm(outputType)
		if vc == nil {
			anyMissing = true
			continue
		}
		blocks = append(blocks, vc)
	}
	if !anyMissing && len(blocks) > 0 {
		varCov = linalg.BlockDiag(blocks)
	}

	return &Structure{
		OutputType:          outputType,
		Observations:        observations,
		Blocks:               blockOrder,
		MinimumStratumAgeYr: minAge,
		VarCov:               varCov,
	}, nil
}

func checkCompatibility(entries []entry) error {
	for i := 1; i < len(entries); i++ {
		if !entries[i].rs.IsCompatible(entries[0].rs) {
			return fmt.Errorf("initial age %d: %w", entries[i].initialAge, metaerr.ErrIncompatibleScriptResult)
		}
	}
	return nil
}

// NeedsRegenerationLag reports whether the stratum group needs the regLag
// nuisance parameter (spec §4.2 step 5: minimumStratumAge <= 10).
func (s *Structure) NeedsRegenerationLag() bool {
	return s.MinimumStratumAgeYr <= 10
}
