package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/panel"
)

// Sector sources recorded in ticker_sectors.csv
const (
	SourceProvider = "provider"
	SourceFallback = "fallback"
	SourceUnmapped = "unmapped"
)

// Fetcher is the subset of Client used by the downloader
type Fetcher interface {
	DailyCloses(ctx context.Context, symbol string, from, to time.Time) ([]panel.Point, error)
	Profile(ctx context.Context, symbol string) (Profile, error)
}

// Downloader builds the merged price panel and the sector metadata for a
// universe
type Downloader struct {
	fetcher  Fetcher
	universe *config.Universe
	logger   *slog.Logger
}

// NewDownloader creates a downloader
func NewDownloader(f Fetcher, u *config.Universe, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{fetcher: f, universe: u, logger: logger}
}

// Result holds the downloaded data
type Result struct {
	Prices *panel.Prices
	Meta   *classify.MetaTable
	// Equities lists the equities with data, in universe order
	Equities []string
	Skips    *apperrors.SkipReport
}

// Run fetches the market index, the macro series and every equity for
// [from, to), merges them on date with forward fill and resolves each
// fetched equity's sector. A failed symbol is skipped; the market index and
// at least one equity are required.
func (d *Downloader) Run(ctx context.Context, from, to time.Time) (*Result, error) {
	d.logger.InfoContext(ctx, "starting download",
		"from", from.Format(config.DateLayout),
		"to", to.Format(config.DateLayout),
		"equities", len(d.universe.Equities),
		"macro", len(d.universe.MacroTickers))

	skips := &apperrors.SkipReport{}
	series := map[string][]panel.Point{}
	var order, equities []string

	base := append([]string{d.universe.MarketTicker}, d.universe.MacroTickers...)
	for i, symbol := range append(base, d.universe.Equities...) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		points, err := d.fetcher.DailyCloses(ctx, symbol, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.logger.WarnContext(ctx, "no data for symbol", "symbol", symbol, "error", err)
			skips.Add(apperrors.NewInsufficientDataError(symbol, err.Error()))
			continue
		}
		series[symbol] = points
		order = append(order, symbol)
		if i >= len(base) {
			equities = append(equities, symbol)
		}
	}

	if _, ok := series[d.universe.MarketTicker]; !ok {
		return nil, apperrors.NewNetworkError(
			fmt.Sprintf("market index %s could not be downloaded", d.universe.MarketTicker), nil)
	}
	if len(equities) == 0 {
		return nil, apperrors.NewNetworkError("no equity data fetched; check the tickers or the connection", nil)
	}

	prices := panel.Merge(series, order)
	meta := d.sectors(ctx, equities, skips)

	skips.Log(ctx, d.logger, config.StageDownload)
	d.logger.InfoContext(ctx, "download completed",
		"dates", len(prices.Dates),
		"columns", len(prices.Columns),
		"equities", len(equities),
		"unmapped", skips.Count(apperrors.ErrTypeUnmapped))
	return &Result{Prices: prices, Meta: meta, Equities: equities, Skips: skips}, nil
}

// sectors resolves each ticker's sector from the provider profile, then the
// universe's fallback map, else Unmapped
func (d *Downloader) sectors(ctx context.Context, tickers []string, skips *apperrors.SkipReport) *classify.MetaTable {
	rows := make([]classify.Meta, 0, len(tickers))
	for _, t := range tickers {
		m := classify.Meta{Ticker: t}
		p, err := d.fetcher.Profile(ctx, t)
		if err != nil {
			d.logger.DebugContext(ctx, "profile unavailable", "ticker", t, "error", err)
		}
		m.Industry = p.Industry
		switch {
		case p.Sector != "":
			m.Sector, m.Source = p.Sector, SourceProvider
		case d.universe.SectorMap[t] != "":
			m.Sector, m.Source = d.universe.SectorMap[t], SourceFallback
		default:
			m.Sector, m.Source = config.UnmappedSector, SourceUnmapped
			skips.Add(apperrors.NewUnmappedError(t))
		}
		rows = append(rows, m)
	}
	return classify.NewMetaTable(rows)
}

// Save writes the merged price file and the sector metadata
func (r *Result) Save(w *exporter.CSVWriter, paths *config.Paths) error {
	if err := r.Prices.Save(w, paths.MergedPricesPath()); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("save %s", config.MergedPricesFile), err)
	}
	return r.Meta.Save(w, paths.SectorMetaPath())
}
