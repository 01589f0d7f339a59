package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
)

// Build runs the container image build and publishes the saved image
// archive for the deploy stage.
//
// The build-time secret reaches the build through the process environment
// and a BuildKit secret mount only. Passing it as a build argument would
// bake it into the image layer history, so any step command that feeds a
// secret through --build-arg is rejected before anything runs.
type Build struct {
	def pipeline.StageDef
}

// NewBuild creates the build stage from its definition.
func NewBuild(def pipeline.StageDef) *Build {
	return &Build{def: def}
}

// Name implements the engine.Stage interface.
func (s *Build) Name() string { return s.def.Name }

// Needs implements the engine.Stage interface.
func (s *Build) Needs() []string { return s.def.NeedsArtifacts }

// Produces implements the engine.Stage interface.
func (s *Build) Produces() []string {
	return []string{producesOr(s.def, ImageArchiveArtifact)}
}

// SecretMountArgs returns the build-engine arguments that expose the named
// environment variable to the build as a mounted secret.
func SecretMountArgs(id, envVar string) []string {
	return []string{"--secret", fmt.Sprintf("id=%s,env=%s", id, envVar)}
}

// Run executes the build steps and publishes the image archive.
func (s *Build) Run(ctx context.Context, rc *engine.RunContext) error {
	if err := s.rejectBuildArgSecrets(); err != nil {
		return err
	}

	env, err := resolveStageSecrets(ctx, rc, s.def.Secrets)
	if err != nil {
		return err
	}
	workdir := stageWorkdir(rc, s.def)

	if err := runSteps(ctx, rc, s.def.Name, s.def.Steps, env, workdir); err != nil {
		return err
	}

	archivePath := s.def.ArchiveFile
	if archivePath == "" {
		return engine.Fail(domain.CodePublishFailed,
			fmt.Errorf("no archive file configured for stage %q", s.def.Name))
	}
	if !filepath.IsAbs(archivePath) {
		archivePath = filepath.Join(workdir, archivePath)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return engine.Fail(domain.CodePublishFailed,
			fmt.Errorf("image archive %s missing after build: %w", archivePath, err))
	}
	defer file.Close()

	name := producesOr(s.def, ImageArchiveArtifact)
	info, err := rc.Artifacts.Publish(ctx, name, file)
	if err != nil {
		return engine.Fail(domain.CodePublishFailed,
			fmt.Errorf("failed to publish %s: %w", name, err))
	}

	rc.Logger.Info("image archive published",
		zap.String("stage", s.def.Name),
		zap.String("artifact", name),
		zap.Int64("size", info.Size),
		zap.String("digest", info.Digest.String()))
	return nil
}

// rejectBuildArgSecrets fails the stage if any step passes a stage secret
// through a build argument.
func (s *Build) rejectBuildArgSecrets() error {
	if len(s.def.Secrets) == 0 {
		return nil
	}

	names := make(map[string]struct{}, len(s.def.Secrets))
	for _, secret := range s.def.Secrets {
		names[secret.Name] = struct{}{}
	}

	for _, step := range s.def.Steps {
		for i, arg := range step.Command {
			if arg != "--build-arg" && !strings.HasPrefix(arg, "--build-arg=") {
				continue
			}
			value := strings.TrimPrefix(arg, "--build-arg=")
			if arg == "--build-arg" && i+1 < len(step.Command) {
				value = step.Command[i+1]
			}
			for name := range names {
				if strings.Contains(value, name) {
					return engine.Fail(domain.CodeInvalidDefinition,
						fmt.Errorf("step %q passes secret %s via --build-arg; use a secret mount (%s)",
							step.Name, name, strings.Join(SecretMountArgs("app", name), " ")))
				}
			}
		}
	}
	return nil
}
