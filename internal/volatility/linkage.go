package volatility

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/panel"
	"shockstudy/internal/stats"
)

// Linkage regressors
const (
	TermConst  = "const"
	TermTreat  = "Treated"
	TermEnergy = "EnergyExp_x_dBrent"
	TermRisk   = "RiskExp_x_dVIX"
	TermFX     = "FXExp_x_dINR"
)

// Shock is the relative change of one macro series across the event
type Shock struct {
	Name     string
	Symbol   string
	PreMean  float64
	PostMean float64
	Change   float64
}

// MacroShocks are the Brent, VIX and INR shocks
type MacroShocks struct {
	Brent Shock
	VIX   Shock
	INR   Shock
	KPre  int
	KPost int
}

// All returns the shocks in reporting order
func (m MacroShocks) All() []Shock {
	return []Shock{m.Brent, m.VIX, m.INR}
}

// ComputeMacroShocks averages each macro series over the last kPre dates
// before the event and the first kPost dates on or after it and returns
// (post - pre) / pre. A missing column, an empty window or a non-finite
// change is a MissingInput error: shocks are never silently NaN.
func ComputeMacroShocks(p *panel.Prices, symbols config.MacroSymbols, event time.Time, kPre, kPost int) (MacroShocks, error) {
	out := MacroShocks{KPre: kPre, KPost: kPost}
	named := []struct {
		name   string
		symbol string
		dst    *Shock
	}{
		{"brent", symbols.Brent, &out.Brent},
		{"vix", symbols.VIX, &out.VIX},
		{"inr", symbols.INR, &out.INR},
	}
	for _, n := range named {
		if n.symbol == "" || !p.Has(n.symbol) {
			return out, apperrors.NewMissingInputError(
				fmt.Sprintf("%s column %q", config.MergedPricesFile, n.symbol), config.StageDownload, nil)
		}
	}

	var pre, post []int
	for i, d := range p.Dates {
		if d.Before(event) {
			pre = append(pre, i)
		} else if len(post) < kPost {
			post = append(post, i)
		}
	}
	if len(pre) > kPre {
		pre = pre[len(pre)-kPre:]
	}
	if len(pre) == 0 || len(post) == 0 {
		return out, apperrors.NewMissingInputError(
			fmt.Sprintf("%s rows around %s", config.MergedPricesFile, event.Format(config.DateLayout)),
			config.StageDownload, nil).
			WithContext("pre_rows", len(pre)).
			WithContext("post_rows", len(post))
	}

	for _, n := range named {
		col, _ := p.Column(n.symbol)
		s := Shock{
			Name:     n.name,
			Symbol:   n.symbol,
			PreMean:  stats.Mean(pick(col, pre)),
			PostMean: stats.Mean(pick(col, post)),
		}
		s.Change = (s.PostMean - s.PreMean) / s.PreMean
		if math.IsNaN(s.Change) || math.IsInf(s.Change, 0) {
			return out, apperrors.NewMissingInputError(
				fmt.Sprintf("%s prices for %s around %s", config.MergedPricesFile, n.symbol, event.Format(config.DateLayout)),
				config.StageDownload, nil).
				WithContext("pre_mean", s.PreMean).
				WithContext("post_mean", s.PostMean)
		}
		*n.dst = s
	}
	return out, nil
}

func pick(col []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = col[j]
	}
	return out
}

// ShocksTable renders the macro shocks
func ShocksTable(m MacroShocks) *exporter.Table {
	t := &exporter.Table{
		Name:    config.TableMacroShocks,
		Headers: []string{"shock", "symbol", "pre_mean", "post_mean", "change", "k_pre", "k_post"},
	}
	for _, s := range m.All() {
		t.AddRow(s.Name, s.Symbol,
			exporter.FormatFloat(s.PreMean),
			exporter.FormatFloat(s.PostMean),
			exporter.FormatFloat(s.Change),
			exporter.FormatInt(m.KPre),
			exporter.FormatInt(m.KPost))
	}
	return t
}

// Linkage is the fitted cross-sectional regression of delta sigma on
// macro exposures
type Linkage struct {
	Terms   []stats.Term
	Dropped []string
	N       int
	Shocks  MacroShocks
}

// FitLinkages regresses delta sigma on a Treated flag and on the energy,
// risk and FX exposure flags of each sector scaled by the matching shock,
// with HC1 standard errors. Records with no delta are left out.
func FitLinkages(ctx context.Context, logger *slog.Logger, records []SummaryRecord, shocks MacroShocks) (*Linkage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var y, treat, energy, risk, fx []float64
	for _, r := range records {
		if math.IsNaN(r.DeltaSigma) {
			continue
		}
		e := classify.MacroExposure(r.Sector)
		y = append(y, r.DeltaSigma)
		treat = append(treat, flag(e.Treated))
		energy = append(energy, flag(e.Energy)*shocks.Brent.Change)
		risk = append(risk, flag(e.Risk)*shocks.VIX.Change)
		fx = append(fx, flag(e.FX)*shocks.INR.Change)
	}
	if dropped := len(records) - len(y); dropped > 0 {
		logger.WarnContext(ctx, "volatility rows without delta sigma left out", "rows", dropped)
	}

	n := len(y)
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	d := stats.NewDesign(n)
	for _, c := range []struct {
		name string
		col  []float64
	}{
		{TermConst, ones},
		{TermTreat, treat},
		{TermEnergy, energy},
		{TermRisk, risk},
		{TermFX, fx},
	} {
		if err := d.AddColumn(c.name, c.col); err != nil {
			return nil, err
		}
	}

	reg, err := stats.OLS(d, y)
	if err != nil {
		return nil, apperrors.NewInsufficientDataError(config.TableGlobalLinkages, err.Error())
	}

	byName := map[string]stats.Term{}
	for _, t := range reg.HC1() {
		byName[t.Name] = t
	}
	out := &Linkage{Dropped: reg.Dropped, N: n, Shocks: shocks}
	for _, name := range d.Names() {
		t, ok := byName[name]
		if !ok {
			t = stats.Term{Name: name, Coef: math.NaN(), StdErr: math.NaN(), T: math.NaN(), P: math.NaN()}
		}
		out.Terms = append(out.Terms, t)
	}

	if len(reg.Dropped) > 0 {
		logger.WarnContext(ctx, "linkage regressors not identified", "terms", reg.Dropped)
	}
	logger.InfoContext(ctx, "linkage regression estimated",
		"observations", n,
		"d_brent", shocks.Brent.Change,
		"d_vix", shocks.VIX.Change,
		"d_inr", shocks.INR.Change)
	return out, nil
}

func flag(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Table renders the coefficients as term, coef, std_err, t, pval
func (l *Linkage) Table() *exporter.Table {
	t := &exporter.Table{
		Name:    config.TableGlobalLinkages,
		Headers: []string{"term", "coef", "std_err", "t", "pval"},
	}
	for _, term := range l.Terms {
		t.AddRow(term.Name,
			exporter.FormatFloat(term.Coef),
			exporter.FormatFloat(term.StdErr),
			exporter.FormatFloat(term.T),
			exporter.FormatFloat(term.P))
	}
	return t
}
