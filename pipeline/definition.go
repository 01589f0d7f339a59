// Package pipeline models the declarative pipeline definition: the stage
// chain, per-stage steps and secret references, artifact declarations, and
// trigger rules. Definitions are authored in YAML and validated before a
// run starts.
package pipeline

import (
	"strings"

	"github.com/input-output-hk/catalyst-forge-pipeline/trigger"
)

// Definition is the root of a pipeline document.
type Definition struct {
	// Name identifies the pipeline.
	Name string `yaml:"name"`

	// Trigger configures which repository events start a run.
	Trigger trigger.Rules `yaml:"trigger"`

	// Stages holds the stage chain in execution order.
	Stages []StageDef `yaml:"stages"`
}

// StageDef describes one stage in the chain.
type StageDef struct {
	// Name is the stage name, unique within the pipeline.
	Name string `yaml:"name"`

	// Steps are the external tool invocations the stage runs in order.
	Steps []StepDef `yaml:"steps,omitempty"`

	// Secrets are resolved just-in-time and injected into the step
	// environment for this stage only.
	Secrets []SecretDef `yaml:"secrets,omitempty"`

	// Produces names the artifacts this stage publishes.
	Produces []string `yaml:"produces,omitempty"`

	// NeedsArtifacts names the artifacts this stage consumes. Each must be
	// produced by an earlier stage.
	NeedsArtifacts []string `yaml:"needs-artifacts,omitempty"`

	// Workdir overrides the working directory for the stage's steps.
	Workdir string `yaml:"workdir,omitempty"`

	// CoverageFile is the workspace-relative file the test stage publishes
	// as the coverage report.
	CoverageFile string `yaml:"coverage-file,omitempty"`

	// ArchiveFile is the workspace-relative file the build stage publishes
	// as the image archive.
	ArchiveFile string `yaml:"archive-file,omitempty"`

	// Image configures the registry push for the deploy stage.
	Image *ImageDef `yaml:"image,omitempty"`
}

// StepDef is a single external tool invocation.
type StepDef struct {
	// Name labels the step in logs and events.
	Name string `yaml:"name"`

	// Command is the argv to execute; Command[0] is the program.
	Command []string `yaml:"command"`

	// Env holds additional non-secret environment variables for the step.
	Env map[string]string `yaml:"env,omitempty"`
}

// SecretDef binds a secret reference to an environment variable name.
type SecretDef struct {
	// Name is the environment variable the resolved value is injected as.
	Name string `yaml:"name"`

	// Ref is the provider-specific secret path, optionally suffixed with
	// "@version".
	Ref string `yaml:"ref"`

	// Provider selects a registered secret provider. Empty means the
	// manager's default.
	Provider string `yaml:"provider,omitempty"`
}

// ImageDef configures where the deploy stage pushes the built image.
type ImageDef struct {
	// Repository is the registry repository, e.g. "registry.example.com/app".
	Repository string `yaml:"repository"`

	// Alias is the mutable tag re-targeted on every successful deploy.
	// Defaults to "latest".
	Alias string `yaml:"alias,omitempty"`
}

// SplitRef separates a secret reference into its path and optional version.
func (s SecretDef) SplitRef() (path, version string) {
	if i := strings.LastIndex(s.Ref, "@"); i >= 0 {
		return s.Ref[:i], s.Ref[i+1:]
	}
	return s.Ref, ""
}

// Stage returns the definition for the named stage, or nil.
func (d *Definition) Stage(name string) *StageDef {
	for i := range d.Stages {
		if d.Stages[i].Name == name {
			return &d.Stages[i]
		}
	}
	return nil
}
