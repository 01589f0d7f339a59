package stages

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
)

// QualityScan fetches the coverage report into the workspace and runs the
// analysis scanner against it, with the analysis token injected from the
// secret manager.
type QualityScan struct {
	def pipeline.StageDef
}

// NewQualityScan creates the quality-scan stage from its definition.
func NewQualityScan(def pipeline.StageDef) *QualityScan {
	return &QualityScan{def: def}
}

// Name implements the engine.Stage interface.
func (s *QualityScan) Name() string { return s.def.Name }

// Needs implements the engine.Stage interface.
func (s *QualityScan) Needs() []string {
	return []string{needsOr(s.def, CoverageArtifact)}
}

// Produces implements the engine.Stage interface.
func (s *QualityScan) Produces() []string { return s.def.Produces }

// Run materializes the coverage report and runs the scanner steps.
func (s *QualityScan) Run(ctx context.Context, rc *engine.RunContext) error {
	workdir := stageWorkdir(rc, s.def)
	name := needsOr(s.def, CoverageArtifact)

	dest, err := s.materialize(ctx, rc, name, workdir)
	if err != nil {
		return err
	}
	rc.Logger.Info("coverage report fetched",
		zap.String("stage", s.def.Name),
		zap.String("artifact", name),
		zap.String("path", dest))

	env, err := resolveStageSecrets(ctx, rc, s.def.Secrets)
	if err != nil {
		return err
	}
	return runSteps(ctx, rc, s.def.Name, s.def.Steps, env, workdir)
}

// materialize writes the artifact into the workspace. The target file name
// is the coverage-file override when set, otherwise the artifact name.
func (s *QualityScan) materialize(ctx context.Context, rc *engine.RunContext, name, workdir string) (string, error) {
	rcloser, _, err := rc.Artifacts.Fetch(ctx, name)
	if err != nil {
		return "", engine.Fail(domain.CodeArtifactMissing,
			fmt.Errorf("failed to fetch %s: %w", name, err))
	}
	defer rcloser.Close()

	fileName := s.def.CoverageFile
	if fileName == "" {
		fileName = name
	}
	dest := fileName
	if !filepath.IsAbs(dest) {
		dest = filepath.Join(workdir, fileName)
	}

	file, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	_, err = io.Copy(file, rcloser)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return dest, nil
}
