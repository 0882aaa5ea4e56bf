package operations

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"shockstudy/internal/classify"
	"shockstudy/internal/config"
	apperrors "shockstudy/internal/errors"
	"shockstudy/internal/exporter"
	"shockstudy/internal/marketdata"
)

// StageOutput is what one stage produced
type StageOutput struct {
	Files     []string
	Processed int
	Skipped   int
	Degraded  int
}

// State carries the run inputs shared by every stage and collects their
// outputs. Stages run one at a time; the output methods record against the
// stage the Runner has started.
type State struct {
	Config   *config.Config
	Universe *config.Universe
	Paths    *config.Paths
	Logger   *slog.Logger
	Writer   *exporter.CSVWriter
	// Fetcher is required by the download stage only
	Fetcher marketdata.Fetcher

	// Event is the requested event date; zero when not set
	Event     time.Time
	EventDate string

	mu      sync.Mutex
	current string
	outputs map[string]*StageOutput
}

// NewState validates the configuration and resolves the event date
func NewState(cfg *config.Config, u *config.Universe, paths *config.Paths, logger *slog.Logger) (*State, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if u == nil {
		return nil, apperrors.NewConfigError("universe is required", nil)
	}
	if err := u.Validate(); err != nil {
		return nil, apperrors.NewConfigError("invalid universe", err)
	}

	s := &State{
		Config:   cfg,
		Universe: u,
		Paths:    paths,
		Logger:   logger,
		Writer:   exporter.NewCSVWriter(logger),
		outputs:  make(map[string]*StageOutput),
	}
	if cfg.Study.EventDate != "" {
		event, err := cfg.Study.EventTime()
		if err != nil {
			return nil, apperrors.NewConfigError("invalid event date", err)
		}
		s.Event = event
		s.EventDate = event.Format(config.DateLayout)
	}
	return s, nil
}

// RequireEvent fails when no event date was given
func (s *State) RequireEvent(stage string) error {
	if s.EventDate == "" {
		return NewValidationError(stage, "an event date is required (--event-date)")
	}
	return nil
}

func (s *State) begin(stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = stage
	s.outputs[stage] = &StageOutput{}
}

func (s *State) out() *StageOutput {
	o, ok := s.outputs[s.current]
	if !ok {
		o = &StageOutput{}
		s.outputs[s.current] = o
	}
	return o
}

// Output returns what a stage recorded
func (s *State) Output(stage string) StageOutput {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.outputs[stage]; ok {
		return *o
	}
	return StageOutput{}
}

// AddFile records an artifact written by the current stage
func (s *State) AddFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.out()
	if rel, err := filepath.Rel(s.Paths.BaseDir, path); err == nil {
		path = rel
	}
	o.Files = append(o.Files, filepath.ToSlash(path))
}

// RecordTickers adds processed and skipped counts to the current stage
func (s *State) RecordTickers(processed, skipped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.out()
	o.Processed += processed
	o.Skipped += skipped
}

// RecordDegraded adds fallback fits to the current stage
func (s *State) RecordDegraded(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out().Degraded += n
}

// TablePath is the dated path of a result table
func (s *State) TablePath(table string) string {
	return s.Paths.TablePath(table, s.EventDate)
}

// WriteTables writes each table to its dated path and records it
func (s *State) WriteTables(tables ...*exporter.Table) error {
	for _, t := range tables {
		path := s.TablePath(t.Name)
		if err := s.Writer.WriteTable(path, t); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("write %s", t.Name), err)
		}
		s.AddFile(path)
	}
	return nil
}

// WriteText writes a plain-text result and records it
func (s *State) WriteText(name string, lines []string) error {
	path := s.TablePath(name)
	if err := s.Writer.WriteText(path, lines); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("write %s", name), err)
	}
	s.AddFile(path)
	return nil
}

// Classifier builds a classifier from the universe and the sector metadata
// written by the download stage, if present. src picks which of the two
// sector sources wins.
func (s *State) Classifier(src classify.SectorSource) (*classify.Classifier, error) {
	meta, err := classify.LoadOptionalSectorMeta(s.Paths.SectorMetaPath())
	if err != nil {
		return nil, err
	}
	if meta == nil {
		s.Logger.Warn("sector metadata not found, using the universe sector map",
			"path", s.Paths.SectorMetaPath())
	}
	return classify.New(s.Universe, meta, classify.WithSectorSource(src)), nil
}

// Parameters are the study settings recorded in the manifest
func (s *State) Parameters() map[string]interface{} {
	st := s.Config.Study
	return map[string]interface{}{
		"event_date":       s.EventDate,
		"pre_days":         st.PreDays,
		"post_days":        st.PostDays,
		"gap_days":         st.GapDays,
		"lead_days":        st.LeadDays,
		"car_k1":           st.CARK1,
		"car_k2":           st.CARK2,
		"car_origin":       st.CAROrigin,
		"did_window":       []int{st.DiDRelMin, st.DiDRelMax},
		"ddd_window":       []int{st.DDDRelMin, st.DDDRelMax},
		"drop_start":       st.DropStart,
		"drop_end":         st.DropEnd,
		"k_pre":            st.KPre,
		"k_post":           st.KPost,
		"volatility_model": st.VolatilityModel,
		"bootstrap_seed":   st.BootstrapSeed,
	}
}
