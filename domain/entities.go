package domain

import "time"

// PipelineRun represents a complete execution of the delivery pipeline for a
// repository. It tracks overall status and holds the per-stage execution
// records in chain order.
type PipelineRun struct {
	// ID is the unique identifier for this pipeline run (UUID).
	ID string `json:"id"`

	// Repository is the name of the repository being processed.
	Repository string `json:"repository"`

	// Branch is the git branch that triggered this run.
	Branch string `json:"branch"`

	// CommitSHA is the git commit hash being processed.
	CommitSHA string `json:"commit_sha"`

	// TriggeredBy identifies who or what initiated this pipeline run.
	TriggeredBy string `json:"triggered_by"`

	// Trigger indicates how the pipeline was triggered.
	Trigger TriggerType `json:"trigger"`

	// Status represents the current execution status of the run.
	Status PipelineStatus `json:"status"`

	// StartedAt is when the run began. Nil if not yet started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the run finished. Nil if still running.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Stages holds the per-stage execution records in chain order.
	Stages []*StageExecution `json:"stages,omitempty"`

	// CreatedAt is when this run record was created.
	CreatedAt time.Time `json:"created_at"`
}

// StageExecution represents the execution of a single stage within a run.
// Stages execute strictly sequentially; each is gated on the success of the
// previous one.
type StageExecution struct {
	// RunID references the parent PipelineRun.
	RunID string `json:"run_id"`

	// Name is the stage name (e.g., "test", "build", "deploy").
	Name string `json:"name"`

	// Status represents the current execution status of the stage.
	Status PipelineStatus `json:"status"`

	// StartedAt is when the stage began. Nil if it never started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the stage finished. Nil if still running or never
	// started.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error holds the failure message for FAILED stages.
	Error string `json:"error,omitempty"`

	// Code classifies the failure for FAILED stages.
	Code ErrorCode `json:"code,omitempty"`
}

// StepExecution records a single external tool invocation within a stage.
type StepExecution struct {
	// Stage is the name of the stage the step belongs to.
	Stage string `json:"stage"`

	// Name is the step name (e.g., "pytest", "terraform apply").
	Name string `json:"name"`

	// Status represents the execution status of the step.
	Status PipelineStatus `json:"status"`

	// ExitCode is the process exit code. Nil if the step never ran.
	ExitCode *int `json:"exit_code,omitempty"`

	// StartedAt is when the step began. Nil if it never started.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the step finished. Nil if still running.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Stage returns the execution record for the named stage, or nil if the run
// has no such stage.
func (r *PipelineRun) Stage(name string) *StageExecution {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}
