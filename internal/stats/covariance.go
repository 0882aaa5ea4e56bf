package stats

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Term is one row of a coefficient table
type Term struct {
	Name   string
	Coef   float64
	StdErr float64
	T      float64
	P      float64
}

// Clustered returns coefficient inference with cluster-robust standard
// errors. The small-sample factor is G/(G-1)·(N-1)/(N-K).
func (r *Regression) Clustered(groups []string) ([]Term, error) {
	if len(groups) != r.N {
		return nil, fmt.Errorf("cluster labels: got %d, want %d", len(groups), r.N)
	}

	index := make(map[string]int)
	for _, g := range groups {
		if _, ok := index[g]; !ok {
			index[g] = len(index)
		}
	}
	G := len(index)
	if G < 2 {
		return nil, fmt.Errorf("cluster-robust errors need at least 2 clusters, got %d", G)
	}

	scores := mat.NewDense(G, r.K, nil)
	for i, g := range groups {
		row := index[g]
		for j := 0; j < r.K; j++ {
			scores.Set(row, j, scores.At(row, j)+r.x.At(i, j)*r.Resid[i])
		}
	}
	var meat mat.SymDense
	meat.SymOuterK(1, scores.T())

	c := float64(G) / float64(G-1) * float64(r.N-1) / float64(r.N-r.K)
	return r.terms(r.sandwich(&meat, c)), nil
}

// HC1 returns coefficient inference with heteroskedasticity-robust standard
// errors scaled by n/(n-k).
func (r *Regression) HC1() []Term {
	weighted := mat.NewDense(r.N, r.K, nil)
	for i := 0; i < r.N; i++ {
		for j := 0; j < r.K; j++ {
			weighted.Set(i, j, r.x.At(i, j)*r.Resid[i])
		}
	}
	var meat mat.SymDense
	meat.SymOuterK(1, weighted.T())

	c := float64(r.N) / float64(r.N-r.K)
	return r.terms(r.sandwich(&meat, c))
}

func (r *Regression) sandwich(meat mat.Symmetric, scale float64) *mat.Dense {
	var tmp, cov mat.Dense
	tmp.Mul(r.xtxInv, meat)
	cov.Mul(&tmp, r.xtxInv)
	cov.Scale(scale, &cov)
	return &cov
}

func (r *Regression) terms(cov *mat.Dense) []Term {
	out := make([]Term, r.K)
	for j := range out {
		se := math.Sqrt(cov.At(j, j))
		t, p := math.NaN(), math.NaN()
		if se > 0 && !math.IsNaN(se) {
			t = r.Coef[j] / se
			p = 2 * distuv.UnitNormal.Survival(math.Abs(t))
		}
		out[j] = Term{Name: r.Names[j], Coef: r.Coef[j], StdErr: se, T: t, P: p}
	}
	return out
}

// FindTerm returns the named term from a coefficient table
func FindTerm(terms []Term, name string) (Term, bool) {
	for _, t := range terms {
		if t.Name == name {
			return t, true
		}
	}
	return Term{}, false
}
