package domain

// ErrorCode classifies run-level failures. Codes are string-based for
// debuggability and natural JSON serialization.
type ErrorCode string

const (
	// CodeInvalidDefinition indicates the pipeline definition failed
	// validation before any stage executed.
	CodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"

	// CodeTriggerSkipped indicates trigger evaluation declined the run.
	CodeTriggerSkipped ErrorCode = "TRIGGER_SKIPPED"

	// CodeExecutionFailed indicates an external tool invocation failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// CodeArtifactMissing indicates a stage's required input artifact was
	// absent from the run's artifact store.
	CodeArtifactMissing ErrorCode = "ARTIFACT_MISSING"

	// CodeSecretResolution indicates a secret reference could not be
	// resolved for stage injection.
	CodeSecretResolution ErrorCode = "SECRET_RESOLUTION_FAILED"

	// CodePublishFailed indicates a registry push or artifact publish
	// operation failed.
	CodePublishFailed ErrorCode = "PUBLISH_FAILED"

	// CodeCancelled indicates the run was cancelled before completion.
	CodeCancelled ErrorCode = "CANCELLED"
)
