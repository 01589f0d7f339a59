package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
)

// Test runs the test suite with coverage and publishes the coverage report
// for the quality-scan stage.
type Test struct {
	def pipeline.StageDef
}

// NewTest creates the test stage from its definition.
func NewTest(def pipeline.StageDef) *Test {
	return &Test{def: def}
}

// Name implements the engine.Stage interface.
func (s *Test) Name() string { return s.def.Name }

// Needs implements the engine.Stage interface.
func (s *Test) Needs() []string { return s.def.NeedsArtifacts }

// Produces implements the engine.Stage interface.
func (s *Test) Produces() []string {
	return []string{producesOr(s.def, CoverageArtifact)}
}

// Run executes the test steps and publishes the configured coverage file.
// A green suite without a coverage file is a failure: the report is the
// stage's contract with quality-scan.
func (s *Test) Run(ctx context.Context, rc *engine.RunContext) error {
	env, err := resolveStageSecrets(ctx, rc, s.def.Secrets)
	if err != nil {
		return err
	}
	workdir := stageWorkdir(rc, s.def)

	if err := runSteps(ctx, rc, s.def.Name, s.def.Steps, env, workdir); err != nil {
		return err
	}

	coveragePath := s.def.CoverageFile
	if coveragePath == "" {
		return engine.Fail(domain.CodePublishFailed,
			fmt.Errorf("no coverage file configured for stage %q", s.def.Name))
	}
	if !filepath.IsAbs(coveragePath) {
		coveragePath = filepath.Join(workdir, coveragePath)
	}

	file, err := os.Open(coveragePath)
	if err != nil {
		return engine.Fail(domain.CodePublishFailed,
			fmt.Errorf("coverage file %s missing after test run: %w", coveragePath, err))
	}
	defer file.Close()

	name := producesOr(s.def, CoverageArtifact)
	info, err := rc.Artifacts.Publish(ctx, name, file)
	if err != nil {
		return engine.Fail(domain.CodePublishFailed,
			fmt.Errorf("failed to publish %s: %w", name, err))
	}

	rc.Logger.Info("coverage report published",
		zap.String("stage", s.def.Name),
		zap.String("artifact", name),
		zap.Int64("size", info.Size),
		zap.String("digest", info.Digest.String()))
	return nil
}
