package operations

import (
	"context"
	"sync"
	"time"
)

// Stage is a single step of the study
type Stage interface {
	// ID returns the unique identifier, also the CLI subcommand name
	ID() string

	// Name returns the human-readable name
	Name() string

	// Dependencies returns the IDs of stages whose artifacts this stage reads
	Dependencies() []string

	// Validate checks the run state before Execute is called
	Validate(state *State) error

	// Execute runs the stage
	Execute(ctx context.Context, state *State) error
}

// StageStatus represents the current status of a stage
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// StageState is the runtime state of one stage in a run
type StageState struct {
	mu        sync.RWMutex
	ID        string
	Name      string
	Status    StageStatus
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// NewStageState creates a pending stage state
func NewStageState(id, name string) *StageState {
	return &StageState{ID: id, Name: name, Status: StageStatusPending}
}

// Start marks the stage as active
func (s *StageState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartTime = time.Now()
	s.Status = StageStatusActive
}

// Complete marks the stage as completed
func (s *StageState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Status = StageStatusCompleted
}

// Fail marks the stage as failed with err
func (s *StageState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Status = StageStatusFailed
	s.Err = err
}

// Skip marks the stage as skipped
func (s *StageState) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StageStatusSkipped
}

// GetStatus returns the current status
func (s *StageState) GetStatus() StageStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns the elapsed time of the stage
func (s *StageState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime.IsZero() {
		return 0
	}
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

// BaseStage carries the identity shared by every stage
type BaseStage struct {
	id           string
	name         string
	dependencies []string
}

// NewBaseStage creates a base stage
func NewBaseStage(id, name string, dependencies ...string) BaseStage {
	return BaseStage{id: id, name: name, dependencies: dependencies}
}

// ID returns the stage ID
func (b *BaseStage) ID() string { return b.id }

// Name returns the stage name
func (b *BaseStage) Name() string { return b.name }

// Dependencies returns the stage dependencies
func (b *BaseStage) Dependencies() []string { return b.dependencies }

// Validate accepts any state by default
func (b *BaseStage) Validate(state *State) error { return nil }
