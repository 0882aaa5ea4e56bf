package eventstudy

import (
	"fmt"
	"sort"
	"time"
)

// CAR accumulation origins
const (
	// OriginWindow accumulates from the first event-window day
	OriginWindow = "window"
	// OriginEvent restarts accumulation on the aligned event date; days
	// before it keep the window-origin running sum
	OriginEvent = "event"
)

// Params are the window and horizon settings of an event study
type Params struct {
	PreDays   int
	PostDays  int
	GapDays   int
	LeadDays  int
	CARK1     int
	CARK2     int
	CAROrigin string
}

// DefaultParams returns the standard 120/21/5/20 layout with 5 and 10 day CARs
func DefaultParams() Params {
	return Params{
		PreDays:   120,
		PostDays:  20,
		GapDays:   21,
		LeadDays:  5,
		CARK1:     5,
		CARK2:     10,
		CAROrigin: OriginWindow,
	}
}

// Validate checks the parameters
func (p Params) Validate() error {
	if p.PreDays < 1 {
		return fmt.Errorf("pre days must be positive, got %d", p.PreDays)
	}
	if p.PostDays < 0 || p.GapDays < 0 || p.LeadDays < 0 || p.CARK1 < 0 || p.CARK2 < 0 {
		return fmt.Errorf("window lengths and CAR horizons must be non-negative")
	}
	if p.CAROrigin != OriginWindow && p.CAROrigin != OriginEvent {
		return fmt.Errorf("unknown CAR origin %q", p.CAROrigin)
	}
	return nil
}

// Alignment is the event date resolved onto the trading calendar
type Alignment struct {
	Requested time.Time
	Index     int
	Date      time.Time
	// Degenerate is set when no trading day falls on or after the requested
	// date and the last trading day was used instead
	Degenerate bool
}

// AlignEventDate maps event onto the first trading day on or after it. When
// none exists the last trading day is used and the alignment is flagged.
func AlignEventDate(calendar []time.Time, event time.Time) (Alignment, error) {
	if len(calendar) == 0 {
		return Alignment{}, fmt.Errorf("empty trading calendar")
	}
	i := sort.Search(len(calendar), func(i int) bool { return !calendar[i].Before(event) })
	a := Alignment{Requested: event, Index: i}
	if i == len(calendar) {
		a.Index = len(calendar) - 1
		a.Degenerate = true
	}
	a.Date = calendar[a.Index]
	return a, nil
}

// Windows are positions on the trading calendar. The estimation window is
// half-open [EstStart, EstEnd); the event window is closed [EvStart, EvEnd].
type Windows struct {
	Event    Alignment
	EstStart int
	EstEnd   int
	EvStart  int
	EvEnd    int
	// Last is the final calendar position, for horizon clamping
	Last int
}

// ComputeWindows lays out the estimation window [ev-(pre+gap), ev-gap) and
// the event window [ev-lead, ev+post], clipped to the calendar.
func ComputeWindows(calendar []time.Time, event time.Time, p Params) (Windows, error) {
	a, err := AlignEventDate(calendar, event)
	if err != nil {
		return Windows{}, err
	}
	ev := a.Index
	last := len(calendar) - 1
	return Windows{
		Event:    a,
		EstStart: max(0, ev-(p.PreDays+p.GapDays)),
		EstEnd:   max(0, ev-p.GapDays),
		EvStart:  max(0, ev-p.LeadDays),
		EvEnd:    min(last, ev+p.PostDays),
		Last:     last,
	}, nil
}

// HorizonDate returns the calendar date k trading days after the event,
// clamped to the last trading day.
func (w Windows) HorizonDate(calendar []time.Time, k int) time.Time {
	return calendar[min(w.Event.Index+k, w.Last)]
}
