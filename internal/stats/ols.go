package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptySample is returned when a fit has no observations
var ErrEmptySample = errors.New("empty sample")

// collinearityTol is the relative residual norm below which a column is
// treated as a linear combination of the columns before it.
const collinearityTol = 1e-7

var machineEps = math.Nextafter(1, 2) - 1

// LeastSquares returns the minimum-norm least-squares solution of X b = y
// and the numerical rank of X. Singular values at or below
// eps·max(n,k)·σmax are treated as zero.
func LeastSquares(X mat.Matrix, y []float64) ([]float64, int, error) {
	n, k := X.Dims()
	if n == 0 || len(y) == 0 {
		return nil, 0, ErrEmptySample
	}
	if len(y) != n {
		return nil, 0, fmt.Errorf("dimension mismatch: %d rows, %d targets", n, len(y))
	}

	var svd mat.SVD
	if ok := svd.Factorize(X, mat.SVDThin); !ok {
		return nil, 0, errors.New("svd factorization failed")
	}
	rank := svd.Rank(machineEps * float64(max(n, k)))
	out := make([]float64, k)
	if rank == 0 {
		return out, 0, nil
	}

	var b mat.VecDense
	svd.SolveVecTo(&b, mat.NewVecDense(n, append([]float64(nil), y...)), rank)
	for i := range out {
		out[i] = b.AtVec(i)
	}
	return out, rank, nil
}

// Regression is a fitted OLS model over the full-rank subset of a design
type Regression struct {
	Names   []string
	Dropped []string
	Coef    []float64
	Resid   []float64
	N       int
	K       int

	x      *mat.Dense
	xtxInv *mat.SymDense
}

// OLS fits y on the design. Columns that are (numerically) linear
// combinations of earlier columns are removed and reported in Dropped.
func OLS(d *Design, y []float64) (*Regression, error) {
	n := d.Rows()
	if n == 0 {
		return nil, ErrEmptySample
	}
	if len(y) != n {
		return nil, fmt.Errorf("dimension mismatch: %d rows, %d targets", n, len(y))
	}

	keep := independentColumns(d.cols, collinearityTol)
	if len(keep) == 0 {
		return nil, errors.New("design has no non-zero columns")
	}
	if len(keep) >= n {
		return nil, fmt.Errorf("%d observations cannot identify %d parameters", n, len(keep))
	}

	reg := &Regression{N: n, K: len(keep)}
	kept := make(map[int]bool, len(keep))
	x := mat.NewDense(n, len(keep), nil)
	for j, c := range keep {
		kept[c] = true
		x.SetCol(j, d.cols[c])
		reg.Names = append(reg.Names, d.names[c])
	}
	for c, name := range d.names {
		if !kept[c] {
			reg.Dropped = append(reg.Dropped, name)
		}
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, x.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, errors.New("design matrix is singular")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, fmt.Errorf("invert normal equations: %w", err)
	}

	yv := mat.NewVecDense(n, append([]float64(nil), y...))
	var xty, beta, fitted mat.VecDense
	xty.MulVec(x.T(), yv)
	beta.MulVec(&inv, &xty)
	fitted.MulVec(x, &beta)

	reg.Coef = make([]float64, reg.K)
	for i := range reg.Coef {
		reg.Coef[i] = beta.AtVec(i)
	}
	reg.Resid = make([]float64, n)
	for i := range reg.Resid {
		reg.Resid[i] = y[i] - fitted.AtVec(i)
	}
	reg.x = x
	reg.xtxInv = &inv
	return reg, nil
}

// Index returns the position of a kept term, or -1
func (r *Regression) Index(name string) int {
	for i, n := range r.Names {
		if n == name {
			return i
		}
	}
	return -1
}

// independentColumns selects, in order, the columns that add a direction not
// spanned by the columns already selected (modified Gram-Schmidt with one
// re-orthogonalization pass).
func independentColumns(cols [][]float64, tol float64) []int {
	var basis [][]float64
	var keep []int
	for j, col := range cols {
		v := append([]float64(nil), col...)
		norm0 := floats.Norm(v, 2)
		if norm0 == 0 {
			continue
		}
		for pass := 0; pass < 2; pass++ {
			for _, q := range basis {
				floats.AddScaled(v, -floats.Dot(q, v), q)
			}
		}
		norm := floats.Norm(v, 2)
		if norm <= tol*norm0 {
			continue
		}
		floats.Scale(1/norm, v)
		basis = append(basis, v)
		keep = append(keep, j)
	}
	return keep
}
