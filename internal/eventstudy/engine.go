package eventstudy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/panel"
	"shockstudy/internal/stats"
)

// DefaultTimeout bounds one event-study run
const DefaultTimeout = 5 * time.Minute

// Security is the event-study outcome for one ticker
type Security struct {
	Ticker string
	Model  MarketModel
	Series []Observation
	CARK1  float64
	CARK2  float64
}

// Result is a completed event study
type Result struct {
	Params   Params
	Market   string
	Calendar []time.Time
	Windows  Windows
	// Securities are in input ticker order; skipped tickers are absent
	Securities []Security
	Skips      *apperrors.SkipReport
}

// Engine runs the market-model event study over a return table
type Engine struct {
	params  Params
	logger  *slog.Logger
	workers int
	timeout time.Duration
}

// NewEngine creates an engine with the given window parameters
func NewEngine(params Params, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		params:  params,
		logger:  logger,
		workers: 4,
		timeout: DefaultTimeout,
	}
}

// SetConfiguration sets the worker count and run timeout
func (e *Engine) SetConfiguration(workers int, timeout time.Duration) {
	if workers > 0 {
		e.workers = workers
	}
	if timeout > 0 {
		e.timeout = timeout
	}
}

// Run fits the market model for each ticker on the estimation window and
// computes AR/CAR over the event window. The trading calendar is the set of
// rows where the market return is defined. Tickers without estimation data
// are skipped and recorded; the run fails only when every ticker is skipped.
func (e *Engine) Run(ctx context.Context, r *panel.Returns, market string, tickers []string, event time.Time) (*Result, error) {
	start := time.Now()
	if err := e.params.Validate(); err != nil {
		return nil, apperrors.NewConfigError("invalid event-study parameters", err)
	}

	marketRet, ok := r.Column(market)
	if !ok {
		return nil, apperrors.NewMissingInputError(fmt.Sprintf("price column %s", market), config.StageDownload, nil)
	}
	rows := r.Defined(market)
	calendar := make([]time.Time, len(rows))
	for i, row := range rows {
		calendar[i] = r.Dates[row]
	}

	w, err := ComputeWindows(calendar, event, e.params)
	if err != nil {
		return nil, apperrors.NewInsufficientDataError(market, "no market returns to build a trading calendar")
	}

	e.logger.InfoContext(ctx, "starting event study",
		"event_date", event.Format(config.DateLayout),
		"aligned_date", w.Event.Date.Format(config.DateLayout),
		"tickers", len(tickers),
		"estimation_days", w.EstEnd-w.EstStart,
		"event_days", w.EvEnd-w.EvStart+1,
		"workers", e.workers,
	)
	if w.Event.Degenerate {
		e.logger.WarnContext(ctx, "event date after last trading day, using last trading day",
			"event_date", event.Format(config.DateLayout),
			"aligned_date", w.Event.Date.Format(config.DateLayout))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	skips := &apperrors.SkipReport{}
	results := make([]*Security, len(tickers))

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.workers)
	for i, ticker := range tickers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			tickerRet, ok := r.Column(ticker)
			if !ok {
				skips.Add(apperrors.NewInsufficientDataError(ticker, "no price column"))
				return nil
			}
			sec, err := e.study(ticker, rows, calendar, w, tickerRet, marketRet)
			if err != nil {
				var appErr *apperrors.AppError
				if errors.As(err, &appErr) && !appErr.IsFatal() {
					skips.Add(appErr)
					return nil
				}
				return fmt.Errorf("event study for %s: %w", ticker, err)
			}
			results[i] = sec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{
		Params:   e.params,
		Market:   market,
		Calendar: calendar,
		Windows:  w,
		Skips:    skips,
	}
	for _, s := range results {
		if s != nil {
			res.Securities = append(res.Securities, *s)
		}
	}
	skips.Log(ctx, e.logger, config.StageEventStudy)

	if len(res.Securities) == 0 {
		return nil, apperrors.NewInsufficientDataError(market,
			fmt.Sprintf("no ticker had estimation data (%d skipped)", skips.Len()))
	}

	e.logger.InfoContext(ctx, "event study completed",
		"duration", time.Since(start),
		"tickers_processed", len(res.Securities),
		"tickers_skipped", skips.Len(),
	)
	return res, nil
}

// study runs one ticker. rows maps calendar positions to return-table rows.
func (e *Engine) study(ticker string, rows []int, calendar []time.Time, w Windows, tickerRet, marketRet []float64) (*Security, error) {
	slice := func(from, to int) (dates []time.Time, y, x []float64) {
		for pos := from; pos < to; pos++ {
			row := rows[pos]
			dates = append(dates, calendar[pos])
			y = append(y, tickerRet[row])
			x = append(x, marketRet[row])
		}
		return dates, y, x
	}

	_, estY, estX := slice(w.EstStart, w.EstEnd)
	model, err := Fit(estY, estX)
	if errors.Is(err, stats.ErrEmptySample) {
		return nil, apperrors.NewInsufficientDataError(ticker, "empty estimation window")
	}
	if err != nil {
		return nil, err
	}
	if model.Rank < 2 {
		e.logger.Debug("rank-deficient market model, using minimum-norm solution",
			"ticker", ticker, "observations", model.N)
	}

	evDates, evY, evX := slice(w.EvStart, w.EvEnd+1)
	series := AbnormalReturns(model, evDates, evY, evX, e.params.CAROrigin, w.Event.Date)

	return &Security{
		Ticker: ticker,
		Model:  model,
		Series: series,
		CARK1:  CARAt(series, w.HorizonDate(calendar, e.params.CARK1)),
		CARK2:  CARAt(series, w.HorizonDate(calendar, e.params.CARK2)),
	}, nil
}
