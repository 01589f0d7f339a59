package domain

// PipelineStatus represents the execution status of a run or one of its
// stages. The same status set is used across the execution hierarchy:
// PipelineRun, StageExecution, and StepExecution.
type PipelineStatus string

const (
	// StatusPending indicates execution is queued but not yet started.
	StatusPending PipelineStatus = "PENDING"

	// StatusRunning indicates execution is currently in progress.
	StatusRunning PipelineStatus = "RUNNING"

	// StatusSuccess indicates execution completed successfully.
	StatusSuccess PipelineStatus = "SUCCESS"

	// StatusFailed indicates execution completed with errors.
	StatusFailed PipelineStatus = "FAILED"

	// StatusSkipped indicates execution never started because an earlier
	// stage in the chain failed. Skipped is terminal.
	StatusSkipped PipelineStatus = "SKIPPED"

	// StatusCancelled indicates execution was cancelled before completion.
	StatusCancelled PipelineStatus = "CANCELLED"
)

// String returns the string representation of the PipelineStatus.
func (s PipelineStatus) String() string {
	return string(s)
}

// Terminal reports whether the status is a terminal state. Terminal
// statuses never transition again.
func (s PipelineStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// TriggerType indicates how a pipeline run was initiated.
type TriggerType string

const (
	// TriggerPush represents a push to a branch.
	TriggerPush TriggerType = "push"

	// TriggerPullRequest represents a pull request targeting a branch.
	TriggerPullRequest TriggerType = "pull_request"

	// TriggerManual represents a run started explicitly by an operator.
	TriggerManual TriggerType = "manual"
)

// String returns the string representation of the TriggerType.
func (t TriggerType) String() string {
	return string(t)
}

// ArtifactType categorizes the payloads handed between stages within a run.
type ArtifactType string

const (
	// ArtifactTypeReport represents analysis inputs such as coverage reports.
	ArtifactTypeReport ArtifactType = "REPORT"

	// ArtifactTypeImageArchive represents a serialized container image.
	ArtifactTypeImageArchive ArtifactType = "IMAGE_ARCHIVE"

	// ArtifactTypeGeneric represents any other run-scoped file.
	ArtifactTypeGeneric ArtifactType = "GENERIC"
)

// String returns the string representation of the ArtifactType.
func (t ArtifactType) String() string {
	return string(t)
}
