package eventstudy

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"shockstudy/internal/stats"
)

// MarketModel holds the fitted r_i = alpha + beta·r_m parameters
type MarketModel struct {
	Alpha float64
	Beta  float64
	// N is the number of estimation observations
	N int
	// Rank of the design; below 2 means the minimum-norm solution was used
	Rank int
}

// Fit estimates the market model by least squares. Pairs where either
// return is NaN are dropped first. An empty sample returns
// stats.ErrEmptySample.
func Fit(ticker, market []float64) (MarketModel, error) {
	if len(ticker) != len(market) {
		return MarketModel{}, fmt.Errorf("length mismatch: %d ticker returns, %d market returns", len(ticker), len(market))
	}

	var y, x []float64
	for i := range ticker {
		if math.IsNaN(ticker[i]) || math.IsNaN(market[i]) {
			continue
		}
		y = append(y, ticker[i])
		x = append(x, market[i])
	}
	if len(y) == 0 {
		return MarketModel{}, stats.ErrEmptySample
	}

	X := mat.NewDense(len(x), 2, nil)
	for i, v := range x {
		X.Set(i, 0, 1)
		X.Set(i, 1, v)
	}
	b, rank, err := stats.LeastSquares(X, y)
	if err != nil {
		return MarketModel{}, fmt.Errorf("solve market model: %w", err)
	}
	return MarketModel{Alpha: b[0], Beta: b[1], N: len(y), Rank: rank}, nil
}

// Predict returns the expected return for a market return
func (m MarketModel) Predict(market float64) float64 {
	return m.Alpha + m.Beta*market
}

// Observation is one day of a ticker's abnormal-return series
type Observation struct {
	Date time.Time
	AR   float64
	CAR  float64
}

// AbnormalReturns computes AR = r - (alpha + beta·r_m) for each date where
// both returns exist, and CAR as the running sum from the first such day.
// With OriginEvent, the running sum restarts on eventDate.
func AbnormalReturns(m MarketModel, dates []time.Time, ticker, market []float64, origin string, eventDate time.Time) []Observation {
	obs := make([]Observation, 0, len(dates))
	var car float64
	reset := false
	for i, d := range dates {
		if math.IsNaN(ticker[i]) || math.IsNaN(market[i]) {
			continue
		}
		ar := ticker[i] - m.Predict(market[i])
		if origin == OriginEvent && !reset && !d.Before(eventDate) {
			car = 0
			reset = true
		}
		car += ar
		obs = append(obs, Observation{Date: d, AR: ar, CAR: car})
	}
	return obs
}

// CARAt returns the CAR of the last observation dated on or before target,
// or NaN when there is none.
func CARAt(obs []Observation, target time.Time) float64 {
	result := math.NaN()
	for _, o := range obs {
		if o.Date.After(target) {
			break
		}
		result = o.CAR
	}
	return result
}
