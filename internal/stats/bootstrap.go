package stats

import (
	"math"
	"math/rand/v2"
	"sort"
)

// DefaultSeed is the resampling seed used unless configured otherwise
const DefaultSeed uint64 = 42

// BootstrapResult is a percentile confidence interval for a sample mean
type BootstrapResult struct {
	// Mean is the sample mean of the data
	Mean float64
	// DrawMean is the mean of the bootstrap replicate means
	DrawMean float64
	Low      float64
	High     float64
	N        int
}

// BootstrapMean resamples the finite values of data with replacement b
// times and returns the 2.5/97.5 percentile interval of the replicate means.
// Each call seeds its own generator, so identical inputs give identical
// intervals.
func BootstrapMean(data []float64, b int, seed uint64) BootstrapResult {
	f := Finite(data)
	res := BootstrapResult{
		Mean: math.NaN(), DrawMean: math.NaN(),
		Low: math.NaN(), High: math.NaN(),
		N: len(f),
	}
	if len(f) == 0 || b <= 0 {
		return res
	}
	res.Mean = Mean(f)

	rng := rand.New(rand.NewPCG(seed, seed))
	draws := make([]float64, b)
	n := len(f)
	for i := range draws {
		var sum float64
		for j := 0; j < n; j++ {
			sum += f[rng.IntN(n)]
		}
		draws[i] = sum / float64(n)
	}

	res.DrawMean = Mean(draws)
	sort.Float64s(draws)
	res.Low = percentileSorted(draws, 2.5)
	res.High = percentileSorted(draws, 97.5)
	return res
}
