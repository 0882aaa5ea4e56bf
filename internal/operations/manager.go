package operations

import (
	"context"
	"log/slog"
	"time"

	"shockstudy/internal/infrastructure"
)

// Runner executes stages from a registry
type Runner struct {
	registry *Registry
	config   *Config
	tracer   *StageTracer
	logger   *slog.Logger
}

// NewRunner creates a runner. providers may be nil.
func NewRunner(registry *Registry, cfg *Config, providers *infrastructure.OTelProviders, logger *slog.Logger) *Runner {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		config:   cfg,
		tracer:   NewStageTracer(providers),
		logger:   logger,
	}
}

// Registry returns the runner's registry
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes the requested stages, or every stage when ids is empty, in
// dependency order. The first failing stage stops the run; the stages after
// it are marked skipped. The manifest is returned, and saved when the
// runner has a manifest path, even on failure.
func (r *Runner) Run(ctx context.Context, state *State, ids ...string) (*Manifest, error) {
	plan, err := r.registry.Plan(ids...)
	if err != nil {
		return nil, err
	}

	ctx = infrastructure.EnsureRunID(ctx)
	runID := infrastructure.GetRunID(ctx)
	manifest := NewManifest(runID, state.EventDate)
	manifest.SetParameters(state.Parameters())

	planIDs := make([]string, len(plan))
	states := make([]*StageState, len(plan))
	for i, s := range plan {
		planIDs[i] = s.ID()
		states[i] = NewStageState(s.ID(), s.Name())
	}

	ctx, span := r.tracer.TraceRun(ctx, runID, planIDs)
	r.logger.InfoContext(ctx, "starting run",
		"run_id", runID,
		"event_date", state.EventDate,
		"stages", planIDs)

	start := time.Now()
	runErr := r.execute(ctx, state, plan, states, manifest)
	manifest.Finish()
	infrastructure.EndSpan(span, runErr)

	r.persist(ctx, manifest)

	if runErr != nil {
		r.logger.ErrorContext(ctx, "run failed",
			"run_id", runID,
			"stage", FailedStage(runErr),
			"duration", time.Since(start),
			"error", runErr)
		return manifest, runErr
	}
	r.logger.InfoContext(ctx, "run completed",
		"run_id", runID,
		"stages", len(plan),
		"duration", time.Since(start))
	return manifest, nil
}

func (r *Runner) execute(ctx context.Context, state *State, plan []Stage, states []*StageState, manifest *Manifest) error {
	for i, stage := range plan {
		if err := ctx.Err(); err != nil {
			skipRemaining(states[i:])
			return NewCancellationError(stage.ID(), err)
		}
		if err := r.executeStage(ctx, state, stage, states[i], manifest); err != nil {
			skipRemaining(states[i+1:])
			for _, s := range states[i+1:] {
				r.logger.WarnContext(ctx, "stage skipped after failure",
					"stage", s.ID, "failed_stage", stage.ID())
			}
			return err
		}
	}
	return nil
}

func skipRemaining(states []*StageState) {
	for _, s := range states {
		s.Skip()
	}
}

// executeStage runs one stage with its timeout, span and manifest entry
func (r *Runner) executeStage(ctx context.Context, state *State, stage Stage, st *StageState, manifest *Manifest) error {
	ctx = infrastructure.WithStage(ctx, stage.ID())
	state.begin(stage.ID())
	manifest.RecordStageStart(stage.ID(), stage.Name())
	st.Start()

	if err := stage.Validate(state); err != nil {
		opErr := err
		if !IsOperationError(err, ErrorTypeValidation) {
			opErr = NewValidationError(stage.ID(), err.Error())
		}
		st.Fail(opErr)
		manifest.RecordStageFailure(stage.ID(), opErr)
		return opErr
	}

	timeout := r.config.GetStageTimeout(stage.ID())
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stageCtx, span := r.tracer.TraceStage(stageCtx, stage.ID())

	r.logger.InfoContext(stageCtx, "executing stage", "stage", stage.ID(), "name", stage.Name())
	err := stage.Execute(stageCtx, state)
	st.Complete()
	duration := st.Duration()
	out := state.Output(stage.ID())
	r.tracer.RecordStage(stageCtx, span, stage.ID(), duration, out, err)

	if err != nil {
		opErr := NewExecutionError(stage.ID(), err)
		st.Fail(opErr)
		manifest.RecordStageFailure(stage.ID(), opErr)
		return opErr
	}

	manifest.RecordStageCompletion(stage.ID(), out)
	r.logger.InfoContext(stageCtx, "stage completed",
		"stage", stage.ID(),
		"duration", duration,
		"outputs", len(out.Files),
		"tickers_processed", out.Processed,
		"tickers_skipped", out.Skipped)
	return nil
}

// persist writes the manifest and the metrics textfile. Failures are logged
// and do not change the run outcome.
func (r *Runner) persist(ctx context.Context, manifest *Manifest) {
	if r.config.ManifestPath != "" {
		if err := manifest.SaveToFile(r.config.ManifestPath); err != nil {
			r.logger.WarnContext(ctx, "failed to save manifest", "path", r.config.ManifestPath, "error", err)
		} else {
			r.logger.InfoContext(ctx, "manifest saved", "path", r.config.ManifestPath)
		}
	}
	if err := r.tracer.Flush(r.config.MetricsTextfile); err != nil {
		r.logger.WarnContext(ctx, "failed to write metrics textfile", "path", r.config.MetricsTextfile, "error", err)
	}
}
