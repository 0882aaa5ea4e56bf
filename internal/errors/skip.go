package errors

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// SkipReport collects the non-fatal per-entity errors of a batch: skipped
// tickers, unmapped sectors and degraded fits. Safe for concurrent use.
type SkipReport struct {
	mu    sync.Mutex
	items []*AppError
}

// Add records an entity-level error
func (r *SkipReport) Add(err *AppError) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.items = append(r.items, err)
	r.mu.Unlock()
}

// Items returns the recorded errors
func (r *SkipReport) Items() []*AppError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*AppError(nil), r.items...)
}

// Len is the number of recorded errors
func (r *SkipReport) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Count returns how many errors of type t were recorded
func (r *SkipReport) Count(t ErrorType) int {
	n := 0
	for _, e := range r.Items() {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Entities returns the sorted entity names recorded under type t
func (r *SkipReport) Entities(t ErrorType) []string {
	var out []string
	for _, e := range r.Items() {
		if e.Type != t {
			continue
		}
		if name, ok := entityName(e); ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func entityName(e *AppError) (string, bool) {
	for _, key := range []string{"entity", "ticker"} {
		if v, ok := e.Context[key].(string); ok {
			return v, true
		}
	}
	return "", false
}

// Log writes one warning per recorded error and a closing summary
func (r *SkipReport) Log(ctx context.Context, logger *slog.Logger, stage string) {
	items := r.Items()
	for _, e := range items {
		name, _ := entityName(e)
		logger.WarnContext(ctx, "entity skipped",
			slog.String("entity", name),
			slog.String("type", string(e.Type)),
			slog.String("reason", e.Message))
	}
	if len(items) > 0 {
		logger.WarnContext(ctx, "batch completed with skips",
			slog.String("batch", stage),
			slog.Int("insufficient_data", r.Count(ErrTypeInsufficientData)),
			slog.Int("unmapped", r.Count(ErrTypeUnmapped)),
			slog.Int("degraded", r.Count(ErrTypeConvergence)))
	}
}
