package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/stats"
)

// Regressor names, matching the usual formula notation
const (
	TermTreated      = "TreatedFlag"
	TermHighExposure = "HighExposure"
	TermPost         = "Post"

	TermDiD = "TreatedFlag:Post"
	TermDDD = "TreatedFlag:HighExposure:Post"
)

// Model is a two-way fixed-effects specification
type Model struct {
	Name     string
	Headline string
	// Effects are the regressors after the fixed effects, in order
	Effects []Effect
}

// Effect is a named 0/1 regressor built from a frame row
type Effect struct {
	Name  string
	Value func(Row) bool
}

func treated(r Row) bool { return r.Treated }
func high(r Row) bool    { return r.HighExposure }
func post(r Row) bool    { return r.Post }

// DiD is TreatedFlag*Post with ticker and date fixed effects
var DiD = Model{
	Name:     "did",
	Headline: TermDiD,
	Effects: []Effect{
		{TermTreated, treated},
		{TermPost, post},
		{TermDiD, func(r Row) bool { return r.Treated && r.Post }},
	},
}

// DDD is TreatedFlag*HighExposure*Post with ticker and date fixed effects
var DDD = Model{
	Name:     "ddd",
	Headline: TermDDD,
	Effects: []Effect{
		{TermTreated, treated},
		{TermHighExposure, high},
		{TermPost, post},
		{"TreatedFlag:HighExposure", func(r Row) bool { return r.Treated && r.HighExposure }},
		{TermDiD, func(r Row) bool { return r.Treated && r.Post }},
		{"HighExposure:Post", func(r Row) bool { return r.HighExposure && r.Post }},
		{TermDDD, func(r Row) bool { return r.Treated && r.HighExposure && r.Post }},
	},
}

// Estimate is a fitted fixed-effects regression
type Estimate struct {
	Model Model
	// Terms lists every design column in order; absorbed columns carry NaN
	Terms    []stats.Term
	Dropped  []string
	N        int
	Clusters int
}

// Headline returns the coefficient of interest; ok is false when it was
// absorbed or not estimable
func (e *Estimate) Headline() (stats.Term, bool) {
	t, ok := stats.FindTerm(e.Terms, e.Model.Headline)
	if !ok || math.IsNaN(t.Coef) {
		return t, false
	}
	return t, true
}

// Fit runs the regression AR ~ effects + C(ticker) + C(date) with
// standard errors clustered by ticker. Columns spanned by earlier ones (the
// fixed effects absorb the time-invariant and date-invariant main effects)
// are dropped, logged and reported with NaN estimates.
func Fit(ctx context.Context, logger *slog.Logger, m Model, rows []Row) (*Estimate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(rows) == 0 {
		return nil, apperrors.NewInsufficientDataError(m.Name, "no treated or defensive observations in the window")
	}

	n := len(rows)
	y := make([]float64, n)
	tickers := make([]string, n)
	dates := make([]string, n)
	for i, r := range rows {
		y[i] = r.AR
		tickers[i] = r.Ticker
		dates[i] = r.Date.Format(config.DateLayout)
	}

	d := stats.NewDesign(n)
	d.AddIntercept()
	if err := d.AddFixedEffects("ticker", tickers); err != nil {
		return nil, err
	}
	if err := d.AddFixedEffects("date", dates); err != nil {
		return nil, err
	}
	for _, e := range m.Effects {
		col := make([]float64, n)
		for i, r := range rows {
			if e.Value(r) {
				col[i] = 1
			}
		}
		if err := d.AddColumn(e.Name, col); err != nil {
			return nil, err
		}
	}

	reg, err := stats.OLS(d, y)
	if err != nil {
		return nil, apperrors.NewInsufficientDataError(m.Name, err.Error())
	}
	terms, err := reg.Clustered(tickers)
	if err != nil {
		return nil, apperrors.NewInsufficientDataError(m.Name, err.Error())
	}

	est := &Estimate{Model: m, Dropped: reg.Dropped, N: reg.N, Clusters: countDistinct(tickers)}
	byName := make(map[string]stats.Term, len(terms))
	for _, t := range terms {
		byName[t.Name] = t
	}
	for _, name := range d.Names() {
		t, ok := byName[name]
		if !ok {
			t = stats.Term{Name: name, Coef: math.NaN(), StdErr: math.NaN(), T: math.NaN(), P: math.NaN()}
		}
		est.Terms = append(est.Terms, t)
	}

	if len(reg.Dropped) > 0 {
		logger.InfoContext(ctx, "collinear terms absorbed by fixed effects",
			"model", m.Name,
			"dropped", len(reg.Dropped),
			"effects_dropped", droppedEffects(m, reg.Dropped))
	}
	if h, ok := est.Headline(); ok {
		logger.InfoContext(ctx, "fixed-effects regression estimated",
			"model", m.Name,
			"term", m.Headline,
			"coef", h.Coef,
			"std_err", h.StdErr,
			"pval", h.P,
			"observations", est.N,
			"clusters", est.Clusters)
	} else {
		logger.WarnContext(ctx, "headline term not estimable",
			"model", m.Name, "term", m.Headline)
	}
	return est, nil
}

func droppedEffects(m Model, dropped []string) []string {
	set := map[string]bool{}
	for _, d := range dropped {
		set[d] = true
	}
	var out []string
	for _, e := range m.Effects {
		if set[e.Name] {
			out = append(out, e.Name)
		}
	}
	return out
}

func countDistinct(xs []string) int {
	seen := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		seen[x] = struct{}{}
	}
	return len(seen)
}

// Table renders the estimate as term, coef, std_err, pval
func (e *Estimate) Table(name string) *exporter.Table {
	t := &exporter.Table{Name: name, Headers: []string{"term", "coef", "std_err", "pval"}}
	for _, term := range e.Terms {
		t.AddRow(term.Name,
			exporter.FormatFloat(term.Coef),
			exporter.FormatFloat(term.StdErr),
			exporter.FormatFloat(term.P))
	}
	return t
}

// Summary is a one-line description of the headline estimate
func (e *Estimate) Summary() string {
	h, ok := e.Headline()
	if !ok {
		return fmt.Sprintf("%s: %s not estimable", e.Model.Name, e.Model.Headline)
	}
	return fmt.Sprintf("%s: %s = %.6f (SE %.6f, p=%.3f, n=%d, clusters=%d)",
		e.Model.Name, e.Model.Headline, h.Coef, h.StdErr, h.P, e.N, e.Clusters)
}
