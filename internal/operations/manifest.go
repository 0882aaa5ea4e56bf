package operations

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run statuses
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Manifest records what a run did: which stages ran, what each wrote and
// how many tickers it processed or skipped
type Manifest struct {
	mu sync.RWMutex

	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	EventDate string    `json:"event_date,omitempty"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`

	// Parameters is the study configuration the run used
	Parameters map[string]interface{} `json:"parameters,omitempty"`

	Stages []StageExecution `json:"stages"`

	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// StageExecution is the manifest entry of one stage
type StageExecution struct {
	StageID   string    `json:"stage_id"`
	StageName string    `json:"stage_name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	Status    string    `json:"status"`
	Outputs   []string  `json:"outputs,omitempty"`
	Processed int       `json:"tickers_processed"`
	Skipped   int       `json:"tickers_skipped"`
	Degraded  int       `json:"fits_degraded,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// NewManifest creates a manifest for a run
func NewManifest(runID, eventDate string) *Manifest {
	return &Manifest{
		ID:        uuid.New().String(),
		RunID:     runID,
		EventDate: eventDate,
		StartTime: time.Now(),
		Status:    RunStatusRunning,
	}
}

// SetParameters records the run configuration
func (m *Manifest) SetParameters(params map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Parameters = params
}

func (m *Manifest) entry(stageID string) *StageExecution {
	for i := range m.Stages {
		if m.Stages[i].StageID == stageID {
			return &m.Stages[i]
		}
	}
	return nil
}

// RecordStageStart records the start of a stage
func (m *Manifest) RecordStageStart(stageID, stageName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(stageID); e != nil {
		*e = StageExecution{StageID: stageID, StageName: stageName, StartTime: time.Now(), Status: string(StageStatusActive)}
		return
	}
	m.Stages = append(m.Stages, StageExecution{
		StageID:   stageID,
		StageName: stageName,
		StartTime: time.Now(),
		Status:    string(StageStatusActive),
	})
}

// RecordStageCompletion records a finished stage and its outputs
func (m *Manifest) RecordStageCompletion(stageID string, out StageOutput) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(stageID)
	if e == nil {
		return
	}
	e.EndTime = time.Now()
	e.Duration = e.EndTime.Sub(e.StartTime).String()
	e.Status = string(StageStatusCompleted)
	e.Outputs = out.Files
	e.Processed = out.Processed
	e.Skipped = out.Skipped
	e.Degraded = out.Degraded
}

// RecordStageFailure records a failed stage and fails the run
func (m *Manifest) RecordStageFailure(stageID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e := m.entry(stageID); e != nil {
		e.EndTime = time.Now()
		e.Duration = e.EndTime.Sub(e.StartTime).String()
		e.Status = string(StageStatusFailed)
		e.Error = err.Error()
	}
	m.Status = RunStatusFailed
	m.Error = fmt.Sprintf("stage %s failed: %v", stageID, err)
}

// Finish closes the run; a run without a failure is completed
func (m *Manifest) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EndTime = time.Now()
	if m.Status == RunStatusRunning {
		m.Status = RunStatusCompleted
	}
}

// Stage returns the entry for a stage
func (m *Manifest) Stage(stageID string) (StageExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e := m.entry(stageID); e != nil {
		return *e, true
	}
	return StageExecution{}, false
}

// IsStageCompleted checks if a stage completed in this run
func (m *Manifest) IsStageCompleted(stageID string) bool {
	e, ok := m.Stage(stageID)
	return ok && e.Status == string(StageStatusCompleted)
}

// SaveToFile writes the manifest as indented JSON
func (m *Manifest) SaveToFile(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest written by SaveToFile
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}
