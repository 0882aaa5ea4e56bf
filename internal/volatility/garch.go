package volatility

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
)

// garchScale rescales returns to percent before fitting
const garchScale = 100.0

// backcast decay and length for the initial conditional variance
const (
	backcastDecay = 0.94
	backcastLen   = 75
)

// GARCHFit is a fitted constant-mean GARCH(1,1)
type GARCHFit struct {
	Mu    float64
	Omega float64
	Alpha float64
	Beta  float64
	// Sigma is the conditional volatility path on the input scale
	Sigma []float64
	LogL  float64
}

// MeanSigma is the average conditional volatility
func (f *GARCHFit) MeanSigma() float64 {
	return stat.Mean(f.Sigma, nil)
}

var errNotFinite = errors.New("non-finite likelihood")

// FitGARCH estimates r_t = mu + e_t, s2_t = omega + alpha·e_{t-1}^2 +
// beta·s2_{t-1} by Gaussian quasi maximum likelihood. Returns are scaled
// by 100 for the optimizer and the volatility path is scaled back.
// Positivity and alpha+beta < 1 hold by construction of the search space.
func FitGARCH(returns []float64, maxIter int) (*GARCHFit, error) {
	n := len(returns)
	if n < 3 {
		return nil, fmt.Errorf("garch needs at least 3 observations, got %d", n)
	}
	x := make([]float64, n)
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, fmt.Errorf("non-finite return at %d", i)
		}
		x[i] = r * garchScale
	}

	mean, variance := stat.MeanVariance(x, nil)
	if !(variance > 0) {
		return nil, fmt.Errorf("zero variance sample")
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			p := unpack(theta)
			ll, _ := garchLogLikelihood(x, p)
			if math.IsNaN(ll) || math.IsInf(ll, 0) {
				return math.Inf(1)
			}
			return -ll
		},
	}

	start := pack(garchParams{mu: mean, omega: variance * 0.1, alpha: 0.1, beta: 0.8})
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		FuncEvaluations: maxIter * 4,
		Converger:       &optimize.FunctionConverge{Absolute: 1e-9, Iterations: 200},
	}
	result, err := optimize.Minimize(problem, start, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("optimize garch likelihood: %w", err)
	}
	if result.Status == optimize.Failure || math.IsInf(result.F, 0) || math.IsNaN(result.F) {
		return nil, errNotFinite
	}

	p := unpack(result.X)
	ll, s2 := garchLogLikelihood(x, p)
	sigma := make([]float64, n)
	for i, v := range s2 {
		sigma[i] = math.Sqrt(v) / garchScale
	}
	return &GARCHFit{
		Mu:    p.mu / garchScale,
		Omega: p.omega / (garchScale * garchScale),
		Alpha: p.alpha,
		Beta:  p.beta,
		Sigma: sigma,
		LogL:  ll,
	}, nil
}

type garchParams struct {
	mu, omega, alpha, beta float64
}

// pack maps parameters to the unconstrained search space: log omega and a
// three-way softmax over (alpha, beta, 1-alpha-beta).
func pack(p garchParams) []float64 {
	rest := 1 - p.alpha - p.beta
	return []float64{p.mu, math.Log(p.omega), math.Log(p.alpha / rest), math.Log(p.beta / rest)}
}

func unpack(theta []float64) garchParams {
	ea, eb := math.Exp(theta[2]), math.Exp(theta[3])
	den := 1 + ea + eb
	return garchParams{
		mu:    theta[0],
		omega: math.Exp(theta[1]),
		alpha: ea / den,
		beta:  eb / den,
	}
}

// garchLogLikelihood returns the Gaussian log-likelihood and the
// conditional variance path
func garchLogLikelihood(x []float64, p garchParams) (float64, []float64) {
	n := len(x)
	s2 := make([]float64, n)
	s2[0] = backcast(x, p.mu)

	var ll float64
	for t := 0; t < n; t++ {
		if t > 0 {
			e := x[t-1] - p.mu
			s2[t] = p.omega + p.alpha*e*e + p.beta*s2[t-1]
		}
		if s2[t] <= 0 {
			return math.Inf(-1), s2
		}
		e := x[t] - p.mu
		ll -= 0.5 * (math.Log(2*math.Pi) + math.Log(s2[t]) + e*e/s2[t])
	}
	return ll, s2
}

// backcast is an exponentially weighted mean of the first squared residuals
func backcast(x []float64, mu float64) float64 {
	m := min(len(x), backcastLen)
	var num, den float64
	w := 1.0
	for i := 0; i < m; i++ {
		e := x[i] - mu
		num += w * e * e
		den += w
		w *= backcastDecay
	}
	return num / den
}
