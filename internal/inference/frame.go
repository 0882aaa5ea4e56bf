package inference

import (
	"math"
	"time"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	"shockstudy/internal/eventstudy"
)

const day = 24 * time.Hour

// DateRange is a closed calendar interval
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls in [Start, End]
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// FrameOptions select the rows entering a panel regression
type FrameOptions struct {
	Event time.Time
	// RelMin and RelMax bound the calendar-day distance from Event
	RelMin int
	RelMax int
	// Donut rows are removed before the relative-day window applies
	Donut *DateRange
}

// Row is one ticker-day of the regression frame
type Row struct {
	Date         time.Time
	Ticker       string
	AR           float64
	Group        string
	Treated      bool
	HighExposure bool
	Post         bool
	RelDay       int
}

// FrameStats counts the rows removed at each filter
type FrameStats struct {
	Input         int
	OtherGroup    int
	MissingAR     int
	Donut         int
	OutsideWindow int
	Kept          int
}

// BuildFrame joins the AR panel with ticker labels and keeps Treated and
// Defensive rows with a defined AR, outside the donut and inside the
// relative-day window. Tickers absent from labels count as Other.
func BuildFrame(panel []eventstudy.PanelRow, labels map[string]classify.Label, opts FrameOptions) ([]Row, FrameStats) {
	st := FrameStats{Input: len(panel)}
	out := make([]Row, 0, len(panel))
	for _, p := range panel {
		l, ok := labels[p.Ticker]
		if !ok || (l.Group != config.GroupTreated && l.Group != config.GroupDefensive) {
			st.OtherGroup++
			continue
		}
		if math.IsNaN(p.AR) {
			st.MissingAR++
			continue
		}
		if opts.Donut != nil && opts.Donut.Contains(p.Date) {
			st.Donut++
			continue
		}
		rel := RelativeDays(p.Date, opts.Event)
		if rel < opts.RelMin || rel > opts.RelMax {
			st.OutsideWindow++
			continue
		}
		out = append(out, Row{
			Date:         p.Date,
			Ticker:       p.Ticker,
			AR:           p.AR,
			Group:        l.Group,
			Treated:      l.Group == config.GroupTreated,
			HighExposure: l.HighExposure,
			Post:         !p.Date.Before(opts.Event),
			RelDay:       rel,
		})
	}
	st.Kept = len(out)
	return out, st
}

// RelativeDays is the signed calendar-day distance from event to d
func RelativeDays(d, event time.Time) int {
	return int(math.Round(float64(d.Sub(event)) / float64(day)))
}

// PanelTickers returns the distinct tickers of a panel in first-seen order
func PanelTickers(panel []eventstudy.PanelRow) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range panel {
		if !seen[p.Ticker] {
			seen[p.Ticker] = true
			out = append(out, p.Ticker)
		}
	}
	return out
}
