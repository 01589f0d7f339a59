package domain

import "time"

// RunEvent represents a lifecycle event for a pipeline run. Events are
// published to the engine's sink as the run transitions between statuses.
type RunEvent struct {
	// EventID is a unique identifier for this specific event instance.
	EventID string `json:"event_id"`

	// Timestamp is when this event was generated.
	Timestamp time.Time `json:"timestamp"`

	// RunID references the pipeline run that produced this event.
	RunID string `json:"run_id"`

	// Status is the run status at the time of the event.
	Status PipelineStatus `json:"status"`

	// Metadata contains additional event-specific information as key-value
	// pairs. Omitted from JSON when empty.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// StageEvent represents a lifecycle event for a single stage execution.
type StageEvent struct {
	// EventID is a unique identifier for this specific event instance.
	EventID string `json:"event_id"`

	// Timestamp is when this event was generated.
	Timestamp time.Time `json:"timestamp"`

	// RunID references the pipeline run the stage belongs to.
	RunID string `json:"run_id"`

	// Stage is the stage name.
	Stage string `json:"stage"`

	// Status is the stage status at the time of the event.
	Status PipelineStatus `json:"status"`

	// Error holds the failure message for FAILED stage events.
	Error string `json:"error,omitempty"`
}

// ArtifactEvent represents the publication of a run-scoped artifact.
type ArtifactEvent struct {
	// EventID is a unique identifier for this specific event instance.
	EventID string `json:"event_id"`

	// Timestamp is when this event was generated.
	Timestamp time.Time `json:"timestamp"`

	// RunID references the pipeline run that produced the artifact.
	RunID string `json:"run_id"`

	// Name is the artifact name within the run.
	Name string `json:"name"`

	// Type categorizes the artifact payload.
	Type ArtifactType `json:"type"`

	// Digest is the content-addressable digest of the artifact.
	Digest string `json:"digest"`
}
