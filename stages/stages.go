// Package stages provides the five concrete pipeline stages: test,
// quality-scan, provision, build, and deploy. Each is assembled from its
// definition block and collaborates with the engine through the Stage
// interface.
package stages

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/executor"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
)

// Canonical artifact names for the two default handoffs.
const (
	// CoverageArtifact is the coverage report handed from test to
	// quality-scan.
	CoverageArtifact = "coverage-report"

	// ImageArchiveArtifact is the serialized container image handed from
	// build to deploy.
	ImageArchiveArtifact = "image-archive"
)

// Stage name constants recognized by FromDefinition.
const (
	StageTest        = "test"
	StageQualityScan = "quality-scan"
	StageProvision   = "provision"
	StageBuild       = "build"
	StageDeploy      = "deploy"
)

// FromDefinition assembles the stage chain from a validated pipeline
// definition. Stage names map to the five known stage kinds; an unknown
// name is an error. The pusher is required when the definition contains a
// deploy stage.
func FromDefinition(def *pipeline.Definition, pusher ImagePusher) ([]engine.Stage, error) {
	stages := make([]engine.Stage, 0, len(def.Stages))
	for i := range def.Stages {
		stageDef := def.Stages[i]
		switch stageDef.Name {
		case StageTest:
			stages = append(stages, NewTest(stageDef))
		case StageQualityScan:
			stages = append(stages, NewQualityScan(stageDef))
		case StageProvision:
			stages = append(stages, NewProvision(stageDef))
		case StageBuild:
			stages = append(stages, NewBuild(stageDef))
		case StageDeploy:
			if pusher == nil {
				return nil, fmt.Errorf("deploy stage requires a registry client")
			}
			stages = append(stages, NewDeploy(stageDef, pusher))
		default:
			return nil, fmt.Errorf("unknown stage %q", stageDef.Name)
		}
	}
	return stages, nil
}

// resolveStageSecrets resolves the stage's secret references into an env
// map and registers every resolved value with the run's redactor so it
// never appears in captured output.
func resolveStageSecrets(ctx context.Context, rc *engine.RunContext, defs []pipeline.SecretDef) (map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil
	}

	bindings := make([]secrets.EnvBinding, 0, len(defs))
	for _, def := range defs {
		path, version := def.SplitRef()
		bindings = append(bindings, secrets.EnvBinding{
			Name:     def.Name,
			Ref:      secrets.SecretRef{Path: path, Version: version},
			Provider: def.Provider,
		})
	}

	env, values, err := secrets.ResolveEnv(ctx, rc.Secrets, bindings)
	if err != nil {
		return nil, engine.Fail(domain.CodeSecretResolution, err)
	}
	rc.Redactor.Add(values...)
	return env, nil
}

// runSteps executes the stage's steps in order, injecting the secret env on
// top of each step's own variables. The first failing step fails the stage.
func runSteps(ctx context.Context, rc *engine.RunContext, stageName string, steps []pipeline.StepDef, secretEnv map[string]string, workdir string) error {
	for _, step := range steps {
		if err := runStep(ctx, rc, stageName, step, secretEnv, workdir); err != nil {
			return err
		}
	}
	return nil
}

func runStep(ctx context.Context, rc *engine.RunContext, stageName string, step pipeline.StepDef, secretEnv map[string]string, workdir string) error {
	env := make(map[string]string, len(step.Env)+len(secretEnv))
	for k, v := range step.Env {
		env[k] = v
	}
	for k, v := range secretEnv {
		env[k] = v
	}

	logger := rc.Logger.With(
		zap.String("stage", stageName),
		zap.String("step", step.Name),
	)
	logger.Info("step started", zap.String("program", step.Command[0]))
	start := time.Now()

	opts := []executor.Option{
		executor.CaptureAll(),
		executor.WithConsoleRedirect(true),
		executor.WithRedactor(rc.Redactor),
		executor.WithEnv(env),
	}
	if workdir != "" {
		opts = append(opts, executor.WithWorkingDir(workdir))
	}

	result, err := rc.Runner.Run(ctx, step.Command[0], step.Command[1:], opts...)
	duration := time.Since(start)
	if err != nil {
		exitCode := -1
		if result != nil {
			exitCode = result.ExitCode
		}
		logger.Error("step failed",
			zap.Int("exit_code", exitCode),
			zap.Duration("duration", duration))
		return engine.Fail(domain.CodeExecutionFailed,
			fmt.Errorf("step %q failed with exit code %d: %w", step.Name, exitCode, err))
	}

	logger.Info("step succeeded", zap.Duration("duration", duration))
	return nil
}

// stageWorkdir picks the stage's working directory: its own override or the
// run's workspace.
func stageWorkdir(rc *engine.RunContext, def pipeline.StageDef) string {
	if def.Workdir != "" {
		return def.Workdir
	}
	return rc.Workdir
}

// producesOr returns the stage's declared artifact name, or fallback when
// the definition leaves it implicit.
func producesOr(def pipeline.StageDef, fallback string) string {
	if len(def.Produces) > 0 {
		return def.Produces[0]
	}
	return fallback
}

// needsOr returns the stage's declared input artifact, or fallback.
func needsOr(def pipeline.StageDef, fallback string) string {
	if len(def.NeedsArtifacts) > 0 {
		return def.NeedsArtifacts[0]
	}
	return fallback
}
