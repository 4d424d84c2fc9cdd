// Package block implements the data-block wrapper component (spec C4): one
// ResidualBlock per (initialAge, outputType) bucket, owning the block's
// covariance, its AR(1)-decomposed inverse, and the cached log-likelihood
// normalizing constant.
//
// Grounded on AbstractModelImplementation.DataBlockWrapper (original_source)
// for the updateCovMat/getLogLikelihood decomposition, and on the teacher's
// cmodel/model.go staleness-cache pattern (expBr/eQts recomputed only when
// the owning branch length or Q matrix changes).
package block

import (
	"fmt"

	"github.com/borealgrowth/metamodel/linalg"
	"github.com/borealgrowth/metamodel/metaerr"
	"gonum.org/v1/gonum/mat"
)

// ResidualBlock wraps one DataBlock's repeated measurements with the
// machinery needed to evaluate its marginal log-likelihood under a given
// parameter vector (spec §4.3).
type ResidualBlock struct {
	AgeYr               []float64 // stratum age at each row, ordered
	TimeSinceBeginning  []float64 // years since simulation start, ordered
	VecY                []float64 // observed response, ordered
	NbPlots             int
	InitialAgeYr        int

	// varianceAvailable is true when the simulator supplied estimator
	// variance for this block (fixed at construction); false means
	// sigma2_res is a model parameter recomputed every updateCovMat call.
	varianceAvailable bool
	varCovFullCorr    *mat.SymDense // nil until first updateCovMat when !varianceAvailable

	invVarCov  *mat.SymDense
	lnConstant float64
}

// New builds a ResidualBlock from a DataBlock's rows. fixedVarCov is the
// block's residual covariance submatrix when the simulator supplies
// variance (varianceAvailable == true); pass nil otherwise.
func New(ageYr, timeSinceBeginning, vecY []float64, nbPlots, initialAgeYr int, varianceAvailable bool, fixedVarCov *mat.SymDense) *ResidualBlock {
	b := &ResidualBlock{
		AgeYr:               ageYr,
		TimeSinceBeginning:  timeSinceBeginning,
		VecY:                vecY,
		NbPlots:             nbPlots,
		InitialAgeYr:        initialAgeYr,
		varianceAvailable:   varianceAvailable,
	}
	if varianceAvailable {
		b.varCovFullCorr = fixedVarCov
	}
	return b
}

// Size returns the number of repeated measurements in this block.
func (b *ResidualBlock) Size() int { return len(b.VecY) }

// UpdateCovMat recomputes the block's covariance, its inverse, and the
// cached log-likelihood constant for the given rho and (if the block's
// variance is estimated rather than simulator-supplied) residual variance
// sigma2Res (spec §4.3).
func (b *ResidualBlock) UpdateCovMat(rho float64, sigma2Res float64) error {
	n := b.Size()
	if !b.varianceAvailable {
		b.varCovFullCorr = mat.NewSymDense(n, nil)
		v := sigma2Res / float64(b.NbPlots)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				b.varCovFullCorr.SetSym(i, j, v)
			}
		}
	}

	r := linalg.AR1Correlation(n, rho)
	rInv := linalg.AR1Inverse(n, rho)

	varCov := linalg.ElementwiseMulSym(b.varCovFullCorr, r)
	invFull := linalg.ElementwisePowSym(b.varCovFullCorr, -1)
	b.invVarCov = linalg.ElementwiseMulSym(invFull, rInv)

	logDet, err := linalg.LogDet(varCov)
	if err != nil {
		return fmt.Errorf("block (initialAge=%d): %w", b.InitialAgeYr, err)
	}
	b.lnConstant = -0.5*float64(n)*lnTwoPi - 0.5*logDet
	return nil
}

const lnTwoPi = 1.8378770664093453 // math.Log(2 * math.Pi)

// LogLikelihood evaluates the block's marginal log-likelihood given
// per-row predictions mu(ageYr, timeSinceBeginning, u) (spec §4.3). The
// caller supplies the predicted mean vector already evaluated at the
// block's random effect, if any.
func (b *ResidualBlock) LogLikelihood(pred []float64) (float64, error) {
	if len(pred) != b.Size() {
		panic("block: LogLikelihood: prediction vector length mismatch")
	}
	residuals := make([]float64, b.Size())
	for i := range residuals {
		residuals[i] = b.VecY[i] - pred[i]
	}
	quad := linalg.QuadForm(residuals, b.invVarCov)
	if quad < 0 {
		return 0, fmt.Errorf("block (initialAge=%d): %w", b.InitialAgeYr, metaerr.ErrNegativeQuadraticForm)
	}
	return b.lnConstant - 0.5*quad, nil
}

// LnConstant returns the cached normalizing constant from the last
// UpdateCovMat call (used by invariant checks: logLikelihood <= lnConstant).
func (b *ResidualBlock) LnConstant() float64 { return b.lnConstant }
