// Package engine orchestrates a pipeline run: a strictly linear chain of
// stages, each gated on the success of the previous one. The first failure
// fails the run and every downstream stage is left unexecuted. There is no
// parallelism and no rollback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/artifact"
	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/executor"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
)

// Stage is one link in the pipeline chain.
type Stage interface {
	// Name returns the stage name, unique within the run.
	Name() string

	// Needs names the artifacts the stage consumes. The engine verifies
	// their presence before invoking Run.
	Needs() []string

	// Produces names the artifacts the stage publishes on success.
	Produces() []string

	// Run executes the stage. A non-nil error fails the stage and the run.
	Run(ctx context.Context, rc *RunContext) error
}

// RunContext carries the collaborators a stage needs during execution.
type RunContext struct {
	// Run is the pipeline run being executed.
	Run *domain.PipelineRun

	// Artifacts is the run-scoped artifact store.
	Artifacts artifact.Store

	// Secrets resolves secret references for stage injection.
	Secrets *secrets.Manager

	// Runner executes external tools.
	Runner executor.Runner

	// Redactor masks resolved secret values in captured output. Stages
	// register every resolved value before running steps.
	Redactor *executor.Redactor

	// Logger is the run-scoped structured logger.
	Logger *zap.Logger

	// Workdir is the workspace directory steps run in.
	Workdir string
}

// Config configures an Engine.
type Config struct {
	// Artifacts is the run-scoped artifact store. Required.
	Artifacts artifact.Store

	// Secrets resolves secret references. Required.
	Secrets *secrets.Manager

	// Runner executes external tools. Defaults to a local process runner.
	Runner executor.Runner

	// Events receives run and stage lifecycle events. Optional.
	Events Sink

	// Logger is the structured logger. Defaults to zap.NewNop().
	Logger *zap.Logger

	// Workdir is the workspace directory for stage steps.
	Workdir string
}

// Engine executes pipeline runs.
type Engine struct {
	cfg      Config
	redactor *executor.Redactor
}

// New creates an Engine. Artifacts and Secrets are required.
func New(cfg Config) (*Engine, error) {
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if cfg.Secrets == nil {
		return nil, fmt.Errorf("secrets manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = noopSink{}
	}
	redactor := executor.NewRedactor()
	if cfg.Runner == nil {
		cfg.Runner = executor.NewLocal(executor.WithRedactor(redactor))
	}
	return &Engine{cfg: cfg, redactor: redactor}, nil
}

// Run executes the stage chain for the given run. The run and its stage
// executions are mutated in place as the chain progresses. The artifact
// store is discarded when Run returns, on every path.
func (e *Engine) Run(ctx context.Context, run *domain.PipelineRun, stages []Stage) error {
	if err := validateChain(stages); err != nil {
		now := time.Now().UTC()
		run.Status = domain.StatusFailed
		run.CompletedAt = &now
		return &StageError{Code: domain.CodeInvalidDefinition, Err: err}
	}

	defer func() {
		if err := e.cfg.Artifacts.Discard(context.WithoutCancel(ctx)); err != nil {
			e.cfg.Logger.Warn("failed to discard artifact store",
				zap.String("run_id", run.ID), zap.Error(err))
		}
	}()

	start := time.Now().UTC()
	run.Status = domain.StatusRunning
	run.StartedAt = &start
	run.Stages = run.Stages[:0]
	for _, stage := range stages {
		run.Stages = append(run.Stages, &domain.StageExecution{
			RunID:  run.ID,
			Name:   stage.Name(),
			Status: domain.StatusPending,
		})
	}
	e.emitRun(run, nil)

	rc := &RunContext{
		Run:       run,
		Artifacts: e.cfg.Artifacts,
		Secrets:   e.cfg.Secrets,
		Runner:    e.cfg.Runner,
		Redactor:  e.redactor,
		Logger:    e.cfg.Logger.With(zap.String("run_id", run.ID)),
		Workdir:   e.cfg.Workdir,
	}

	var firstErr error
	cancelled := false
	for i, stage := range stages {
		exec := run.Stages[i]

		if firstErr != nil || cancelled {
			exec.Status = domain.StatusSkipped
			e.emitStage(run, exec)
			continue
		}

		if err := ctx.Err(); err != nil {
			cancelled = true
			exec.Status = domain.StatusCancelled
			exec.Error = err.Error()
			exec.Code = domain.CodeCancelled
			e.emitStage(run, exec)
			continue
		}

		e.runStage(ctx, rc, stage, exec)
		switch exec.Status {
		case domain.StatusFailed:
			firstErr = &StageError{
				Stage: exec.Name,
				Code:  exec.Code,
				Err:   errors.New(exec.Error),
			}
		case domain.StatusCancelled:
			cancelled = true
		}
	}

	end := time.Now().UTC()
	run.CompletedAt = &end
	switch {
	case cancelled:
		run.Status = domain.StatusCancelled
	case firstErr != nil:
		run.Status = domain.StatusFailed
	default:
		run.Status = domain.StatusSuccess
	}
	e.emitRun(run, firstErr)

	if cancelled {
		cause := context.Cause(ctx)
		if cause == nil {
			cause = context.Canceled
		}
		return &StageError{Code: domain.CodeCancelled, Err: cause}
	}
	return firstErr
}

// runStage executes a single stage, including the pre-flight check that
// every needed artifact is already present in the store.
func (e *Engine) runStage(ctx context.Context, rc *RunContext, stage Stage, exec *domain.StageExecution) {
	started := time.Now().UTC()
	exec.Status = domain.StatusRunning
	exec.StartedAt = &started
	e.emitStage(rc.Run, exec)

	logger := rc.Logger.With(zap.String("stage", exec.Name))
	logger.Info("stage started")

	err := e.checkNeeds(ctx, stage)
	if err == nil {
		err = stage.Run(ctx, rc)
	}

	completed := time.Now().UTC()
	exec.CompletedAt = &completed

	switch {
	case err == nil:
		exec.Status = domain.StatusSuccess
		logger.Info("stage succeeded", zap.Duration("duration", completed.Sub(started)))
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		exec.Status = domain.StatusCancelled
		exec.Error = err.Error()
		exec.Code = domain.CodeCancelled
		logger.Warn("stage cancelled", zap.Error(err))
	default:
		exec.Status = domain.StatusFailed
		exec.Error = err.Error()
		exec.Code = classify(err)
		logger.Error("stage failed",
			zap.Duration("duration", completed.Sub(started)),
			zap.String("code", string(exec.Code)),
			zap.Error(err))
	}
	e.emitStage(rc.Run, exec)
}

// checkNeeds verifies every artifact the stage consumes is present. A
// missing artifact fails the stage without invoking it.
func (e *Engine) checkNeeds(ctx context.Context, stage Stage) error {
	for _, name := range stage.Needs() {
		if _, err := e.cfg.Artifacts.Stat(ctx, name); err != nil {
			return fmt.Errorf("required artifact %q unavailable: %w", name, err)
		}
	}
	return nil
}

// validateChain checks stage names are unique and every consumed artifact
// is produced by an earlier stage.
func validateChain(stages []Stage) error {
	if len(stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}

	seen := make(map[string]struct{}, len(stages))
	produced := make(map[string]struct{})
	for _, stage := range stages {
		if stage.Name() == "" {
			return fmt.Errorf("stage name is required")
		}
		if _, ok := seen[stage.Name()]; ok {
			return fmt.Errorf("duplicate stage name %q", stage.Name())
		}
		seen[stage.Name()] = struct{}{}

		for _, need := range stage.Needs() {
			if _, ok := produced[need]; !ok {
				return fmt.Errorf("stage %q needs artifact %q which no earlier stage produces",
					stage.Name(), need)
			}
		}
		for _, name := range stage.Produces() {
			produced[name] = struct{}{}
		}
	}
	return nil
}

// classify maps a stage failure to its error code.
func classify(err error) domain.ErrorCode {
	var stageErr *StageError
	if errors.As(err, &stageErr) && stageErr.Code != "" {
		return stageErr.Code
	}
	if errors.Is(err, artifact.ErrNotFound) {
		return domain.CodeArtifactMissing
	}
	if secrets.IsProviderError(err) {
		return domain.CodeSecretResolution
	}
	return domain.CodeExecutionFailed
}
