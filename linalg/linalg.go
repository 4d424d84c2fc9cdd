// Package linalg provides the dense-matrix primitives the fitting engine
// builds on: AR(1) correlation matrices and their closed-form inverse,
// block-diagonal assembly of per-ResultSet covariances, and a handful of
// element-wise helpers that keep the rest of the module from reaching into
// gonum's lower-level API directly.
package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// AR1Correlation builds the n x n correlation matrix Corr(i,j) = rho^|i-j|
// from integer lags, i.e. distances d_ij = |i-j|.
func AR1Correlation(n int, rho float64) *mat.SymDense {
	r := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			lag := math.Abs(float64(i - j))
			r.SetSym(i, j, math.Pow(rho, lag))
		}
	}
	return r
}

// AR1Inverse returns the closed-form inverse of the AR(1) correlation
// matrix above. For n == 1 the matrix is the 1x1 identity. For n > 1 the
// inverse is tridiagonal:
//
//	-rho/(1-rho^2) on the first off-diagonal bands,
//	(1+rho^2)/(1-rho^2) on the interior diagonal, and
//	1/(1-rho^2) on the first and last diagonal entries.
func AR1Inverse(n int, rho float64) *mat.SymDense {
	inv := mat.NewSymDense(n, nil)
	if n == 1 {
		inv.SetSym(0, 0, 1)
		return inv
	}
	denom := 1 - rho*rho
	inv.SetSym(0, 0, 1/denom)
	inv.SetSym(n-1, n-1, 1/denom)
	for i := 1; i < n-1; i++ {
		inv.SetSym(i, i, (1+rho*rho)/denom)
	}
	for i := 0; i < n-1; i++ {
		inv.SetSym(i, i+1, -rho/denom)
	}
	return inv
}

// OuterProduct returns v * v^T for a column vector v.
func OuterProduct(v []float64) *mat.SymDense {
	n := len(v)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, v[i]*v[j])
		}
	}
	return out
}

// ElementwiseMulSym returns the Hadamard (element-wise) product of two
// symmetric matrices of the same size.
func ElementwiseMulSym(a, b *mat.SymDense) *mat.SymDense {
	n := a.SymmetricDim()
	if b.SymmetricDim() != n {
		panic("linalg: ElementwiseMulSym dimension mismatch")
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, a.At(i, j)*b.At(i, j))
		}
	}
	return out
}

// ElementwisePowSym raises every entry of a symmetric matrix to power p.
func ElementwisePowSym(a *mat.SymDense, p float64) *mat.SymDense {
	n := a.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, math.Pow(a.At(i, j), p))
		}
	}
	return out
}

// LogDet returns the natural log of the determinant of a symmetric
// positive-definite matrix, via Cholesky.
func LogDet(a *mat.SymDense) (float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return 0, fmt.Errorf("linalg: matrix is not positive definite")
	}
	return chol.LogDet(), nil
}

// QuadForm computes r^T Vinv r for a column vector r and symmetric matrix
// Vinv.
func QuadForm(r []float64, vInv *mat.SymDense) float64 {
	n := len(r)
	rv := mat.NewVecDense(n, r)
	var tmp mat.VecDense
	tmp.MulVec(vInv, rv)
	return mat.Dot(rv, &tmp)
}

// BlockDiag assembles a list of symmetric blocks into one block-diagonal
// symmetric matrix, off-block entries zero. Block order is preserved.
func BlockDiag(blocks []*mat.SymDense) *mat.SymDense {
	total := 0
	for _, b := range blocks {
		total += b.SymmetricDim()
	}
	out := mat.NewSymDense(total, nil)
	offset := 0
	for _, b := range blocks {
		n := b.SymmetricDim()
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				out.SetSym(offset+i, offset+j, b.At(i, j))
			}
		}
		offset += n
	}
	return out
}

// Submatrix extracts the square submatrix of a indexed by idx (idx[i],
// idx[j] entries), preserving idx order. Used to slice the fixed-effects
// block out of the full parameter covariance matrix.
func Submatrix(a *mat.SymDense, idx []int) *mat.SymDense {
	n := len(idx)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, a.At(idx[i], idx[j]))
		}
	}
	return out
}

// Mean computes the column-wise mean of a set of row vectors.
func Mean(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows[0])
	mean := make([]float64, n)
	for _, r := range rows {
		for i, v := range r {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(rows))
	}
	return mean
}

// SampleCovariance computes the unbiased sample covariance matrix of a set
// of row vectors (one MCMC sample each), n-1 denominator.
func SampleCovariance(rows [][]float64) *mat.SymDense {
	n := len(rows)
	if n < 2 {
		panic("linalg: SampleCovariance needs at least 2 rows")
	}
	p := len(rows[0])
	mean := Mean(rows)
	out := mat.NewSymDense(p, nil)
	for _, r := range rows {
		for i := 0; i < p; i++ {
			di := r[i] - mean[i]
			for j := i; j < p; j++ {
				dj := r[j] - mean[j]
				out.SetSym(i, j, out.At(i, j)+di*dj)
			}
		}
	}
	for i := 0; i < p; i++ {
		for j := i; j < p; j++ {
			out.SetSym(i, j, out.At(i, j)/float64(n-1))
		}
	}
	return out
}
