package volatility

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/eventstudy"
)

// DefaultMinObs is the minimum segment length on each side of the event
const DefaultMinObs = 5

// Segments holds one ticker's abnormal returns split at the event date
type Segments struct {
	Ticker string
	Pre    []float64
	Post   []float64
}

// Split groups panel rows by ticker in date order. Rows dated before the
// event go to Pre, the rest to Post. NaN abnormal returns are dropped.
// Tickers are returned sorted.
func Split(panel []eventstudy.PanelRow, event time.Time) []Segments {
	byTicker := map[string][]eventstudy.PanelRow{}
	for _, r := range panel {
		if math.IsNaN(r.AR) {
			continue
		}
		byTicker[r.Ticker] = append(byTicker[r.Ticker], r)
	}

	out := make([]Segments, 0, len(byTicker))
	for ticker, rows := range byTicker {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
		s := Segments{Ticker: ticker}
		for _, r := range rows {
			if r.Date.Before(event) {
				s.Pre = append(s.Pre, r.AR)
			} else {
				s.Post = append(s.Post, r.AR)
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Row is one ticker's volatility contrast
type Row struct {
	Ticker        string
	Sector        string
	ExposureGroup string
	Group         string
	HighExposure  bool
	PreSigma      float64
	PostSigma     float64
	DeltaSigma    float64
	Estimator     string
	// Degraded is set when a segment fell back to the standard deviation
	Degraded bool
	NPre     int
	NPost    int
}

// Treated reports whether the row belongs to the Treated group
func (r Row) Treated() bool { return r.Group == config.GroupTreated }

// Result is the output of a contrast run
type Result struct {
	Estimator string
	Rows      []Row
	Skips     *apperrors.SkipReport
}

// Contrast fits an estimator to the pre and post segments of each ticker
type Contrast struct {
	estimator Estimator
	fallback  Estimator
	minObs    int
	workers   int
	logger    *slog.Logger
}

// NewContrast creates a contrast runner. minObs below 2 is raised to 2.
func NewContrast(est Estimator, minObs int, logger *slog.Logger) *Contrast {
	if logger == nil {
		logger = slog.Default()
	}
	return &Contrast{
		estimator: est,
		fallback:  StdDev{},
		minObs:    max(minObs, 2),
		workers:   4,
		logger:    logger,
	}
}

// SetWorkers sets the number of concurrent fits
func (c *Contrast) SetWorkers(n int) {
	if n > 0 {
		c.workers = n
	}
}

// Run computes the contrast for every ticker of the panel. Tickers short of
// observations are skipped; GARCH failures fall back to the standard
// deviation and mark the row degraded. It is an error if no ticker qualifies.
func (c *Contrast) Run(ctx context.Context, panel []eventstudy.PanelRow, labels map[string]classify.Label, event time.Time) (*Result, error) {
	segments := Split(panel, event)
	c.logger.InfoContext(ctx, "starting volatility contrast",
		"estimator", c.estimator.Name(),
		"tickers", len(segments),
		"event_date", event.Format(config.DateLayout),
		"min_obs", c.minObs)

	skips := &apperrors.SkipReport{}
	rows := make([]*Row, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, seg := range segments {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if len(seg.Pre) < c.minObs || len(seg.Post) < c.minObs {
				skips.Add(apperrors.NewInsufficientDataError(seg.Ticker,
					fmt.Sprintf("pre=%d post=%d observations, need %d each", len(seg.Pre), len(seg.Post), c.minObs)))
				return nil
			}
			row, err := c.fit(seg, labels[seg.Ticker], skips)
			if err != nil {
				if appErr, ok := apperrors.AsAppError(err); ok && !appErr.IsFatal() {
					skips.Add(appErr)
					return nil
				}
				return err
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Estimator: c.estimator.Name(), Skips: skips}
	degraded := 0
	for _, r := range rows {
		if r == nil {
			continue
		}
		res.Rows = append(res.Rows, *r)
		if r.Degraded {
			degraded++
		}
	}
	skips.Log(ctx, c.logger, config.StageVolatility)

	if len(res.Rows) == 0 {
		return nil, apperrors.NewInsufficientDataError(config.TableVolSummary,
			"no ticker has enough pre and post observations; widen the event window")
	}

	c.logger.InfoContext(ctx, "volatility contrast completed",
		"estimator", res.Estimator,
		"tickers", len(res.Rows),
		"degraded", degraded,
		"skipped", skips.Count(apperrors.ErrTypeInsufficientData))
	return res, nil
}

func (c *Contrast) fit(seg Segments, label classify.Label, skips *apperrors.SkipReport) (*Row, error) {
	row := &Row{
		Ticker:        seg.Ticker,
		Sector:        label.Sector,
		ExposureGroup: label.ExposureGroup,
		Group:         label.Group,
		HighExposure:  label.HighExposure,
		Estimator:     c.estimator.Name(),
		NPre:          len(seg.Pre),
		NPost:         len(seg.Post),
	}
	if row.Sector == "" {
		row.Sector = config.UnmappedSector
	}
	if row.Group == "" {
		row.Group = config.GroupOther
	}

	var err error
	if row.PreSigma, err = c.sigma(seg.Ticker, seg.Pre, row, skips); err != nil {
		return nil, err
	}
	if row.PostSigma, err = c.sigma(seg.Ticker, seg.Post, row, skips); err != nil {
		return nil, err
	}
	row.DeltaSigma = row.PostSigma - row.PreSigma
	return row, nil
}

func (c *Contrast) sigma(ticker string, segment []float64, row *Row, skips *apperrors.SkipReport) (float64, error) {
	s, err := c.estimator.MeanSigma(segment)
	if err == nil {
		return s, nil
	}
	if !apperrors.IsType(err, apperrors.ErrTypeConvergence) {
		return math.NaN(), apperrors.NewInsufficientDataError(ticker, err.Error())
	}
	if !row.Degraded {
		skips.Add(apperrors.NewConvergenceError(ticker, err))
	}
	row.Degraded = true
	s, err = c.fallback.MeanSigma(segment)
	if err != nil {
		return math.NaN(), apperrors.NewInsufficientDataError(ticker, err.Error())
	}
	return s, nil
}
