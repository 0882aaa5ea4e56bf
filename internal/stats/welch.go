package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// WelchResult is an unequal-variance two-sample t-test of mean(a) - mean(b)
type WelchResult struct {
	T     float64
	DF    float64
	P     float64
	NA    int
	NB    int
	MeanA float64
	MeanB float64
}

// Welch runs Welch's t-test on the finite values of a and b. T, DF and P
// are NaN when either side has fewer than two values or both variances
// are zero.
func Welch(a, b []float64) WelchResult {
	fa, fb := Finite(a), Finite(b)
	res := WelchResult{
		T: math.NaN(), DF: math.NaN(), P: math.NaN(),
		NA: len(fa), NB: len(fb),
		MeanA: Mean(fa), MeanB: Mean(fb),
	}
	if res.NA < 2 || res.NB < 2 {
		return res
	}

	va := stat.Variance(fa, nil) / float64(res.NA)
	vb := stat.Variance(fb, nil) / float64(res.NB)
	se2 := va + vb
	if se2 == 0 || math.IsNaN(se2) {
		return res
	}

	res.T = (res.MeanA - res.MeanB) / math.Sqrt(se2)
	res.DF = se2 * se2 / (va*va/float64(res.NA-1) + vb*vb/float64(res.NB-1))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: res.DF}
	res.P = 2 * dist.Survival(math.Abs(res.T))
	return res
}
