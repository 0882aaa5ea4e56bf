package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Finite returns the non-NaN, non-Inf values of xs
func Finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}

// Mean is the arithmetic mean of the finite values, NaN when there are none
func Mean(xs []float64) float64 {
	f := Finite(xs)
	if len(f) == 0 {
		return math.NaN()
	}
	return stat.Mean(f, nil)
}

// Std is the sample standard deviation (n-1 denominator) of the finite
// values, NaN with fewer than two.
func Std(xs []float64) float64 {
	f := Finite(xs)
	if len(f) < 2 {
		return math.NaN()
	}
	return stat.StdDev(f, nil)
}

// Median of the finite values
func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// Percentile returns the p-th percentile (0..100) of the finite values using
// linear interpolation between closest ranks: position p/100·(n-1).
func Percentile(xs []float64, p float64) float64 {
	f := Finite(xs)
	if len(f) == 0 {
		return math.NaN()
	}
	sort.Float64s(f)
	return percentileSorted(f, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Summary is a count/mean/median/std description of a sample
type Summary struct {
	Count  int
	Mean   float64
	Median float64
	Std    float64
}

// Describe summarizes the finite values of xs
func Describe(xs []float64) Summary {
	f := Finite(xs)
	return Summary{
		Count:  len(f),
		Mean:   Mean(f),
		Median: Median(f),
		Std:    Std(f),
	}
}
