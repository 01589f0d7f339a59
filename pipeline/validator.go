package pipeline

import (
	"errors"
	"fmt"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
)

// ErrInvalidDefinition is the sentinel all validation failures wrap.
var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// ValidationError reports a single definition problem with its field path.
type ValidationError struct {
	// Field is the YAML path of the offending value.
	Field string

	// Message explains the problem.
	Message string
}

// Error returns the string representation of the ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidDefinition, e.Field, e.Message)
}

// Unwrap makes the error match ErrInvalidDefinition with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDefinition
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the definition for structural problems. It returns the
// first problem found, with the YAML field path of the offending value.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return invalid("name", "pipeline name is required")
	}
	if d.Trigger.Branch == "" {
		return invalid("trigger.branch", "designated branch is required")
	}
	for i, event := range d.Trigger.Events {
		switch event {
		case domain.TriggerPush, domain.TriggerPullRequest, domain.TriggerManual:
		default:
			return invalid(fmt.Sprintf("trigger.events[%d]", i), "unknown event type %q", event)
		}
	}
	if len(d.Stages) == 0 {
		return invalid("stages", "at least one stage is required")
	}

	seen := make(map[string]struct{}, len(d.Stages))
	produced := make(map[string]struct{})
	for i := range d.Stages {
		stage := &d.Stages[i]
		field := fmt.Sprintf("stages[%d]", i)

		if stage.Name == "" {
			return invalid(field+".name", "stage name is required")
		}
		if _, ok := seen[stage.Name]; ok {
			return invalid(field+".name", "duplicate stage name %q", stage.Name)
		}
		seen[stage.Name] = struct{}{}

		if err := validateSteps(field, stage.Steps); err != nil {
			return err
		}
		if err := validateSecrets(field, stage.Secrets); err != nil {
			return err
		}

		for j, name := range stage.NeedsArtifacts {
			if _, ok := produced[name]; !ok {
				return invalid(
					fmt.Sprintf("%s.needs-artifacts[%d]", field, j),
					"artifact %q is not produced by any earlier stage", name,
				)
			}
		}
		for _, name := range stage.Produces {
			produced[name] = struct{}{}
		}

		if stage.Image != nil && stage.Image.Repository == "" {
			return invalid(field+".image.repository", "image repository is required")
		}
	}
	return nil
}

func validateSteps(field string, steps []StepDef) error {
	for j, step := range steps {
		stepField := fmt.Sprintf("%s.steps[%d]", field, j)
		if step.Name == "" {
			return invalid(stepField+".name", "step name is required")
		}
		if len(step.Command) == 0 || step.Command[0] == "" {
			return invalid(stepField+".command", "step command is required")
		}
		for name := range step.Env {
			if !validEnvName(name) {
				return invalid(stepField+".env", "invalid environment variable name %q", name)
			}
		}
	}
	return nil
}

func validateSecrets(field string, secrets []SecretDef) error {
	for j, secret := range secrets {
		secretField := fmt.Sprintf("%s.secrets[%d]", field, j)
		if !validEnvName(secret.Name) {
			return invalid(secretField+".name", "invalid environment variable name %q", secret.Name)
		}
		if path, _ := secret.SplitRef(); path == "" {
			return invalid(secretField+".ref", "secret reference is required")
		}
	}
	return nil
}

// validEnvName reports whether s is a portable environment variable name:
// letters, digits, and underscores, not starting with a digit.
func validEnvName(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
