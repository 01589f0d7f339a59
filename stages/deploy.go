package stages

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
)

// defaultAlias is the mutable tag re-targeted on every successful deploy.
const defaultAlias = "latest"

// shortSHALen is how many characters of the commit SHA form the immutable
// tag.
const shortSHALen = 7

// ImagePusher pushes image archives to an OCI registry. registry.Client
// satisfies it.
type ImagePusher interface {
	Push(ctx context.Context, reference string, archive io.Reader) error
	Tag(ctx context.Context, reference, alias string) error
}

// Deploy fetches the image archive and pushes it to the registry under an
// immutable commit-derived tag, then re-targets the alias tag at the same
// manifest. Re-running with identical inputs produces the identical
// immutable tag and only moves the alias.
type Deploy struct {
	def    pipeline.StageDef
	pusher ImagePusher
}

// NewDeploy creates the deploy stage from its definition.
func NewDeploy(def pipeline.StageDef, pusher ImagePusher) *Deploy {
	return &Deploy{def: def, pusher: pusher}
}

// Name implements the engine.Stage interface.
func (s *Deploy) Name() string { return s.def.Name }

// Needs implements the engine.Stage interface.
func (s *Deploy) Needs() []string {
	return []string{needsOr(s.def, ImageArchiveArtifact)}
}

// Produces implements the engine.Stage interface.
func (s *Deploy) Produces() []string { return s.def.Produces }

// ImmutableTag derives the commit-scoped tag for a run.
func ImmutableTag(commitSHA string) string {
	if len(commitSHA) > shortSHALen {
		return commitSHA[:shortSHALen]
	}
	return commitSHA
}

// Run pushes the archive and moves the alias, then runs any trailing
// rollout steps from the definition.
func (s *Deploy) Run(ctx context.Context, rc *engine.RunContext) error {
	if s.def.Image == nil || s.def.Image.Repository == "" {
		return engine.Fail(domain.CodeInvalidDefinition,
			fmt.Errorf("stage %q has no image repository configured", s.def.Name))
	}
	if rc.Run.CommitSHA == "" {
		return engine.Fail(domain.CodeInvalidDefinition,
			fmt.Errorf("run has no commit SHA to derive the image tag from"))
	}

	env, err := resolveStageSecrets(ctx, rc, s.def.Secrets)
	if err != nil {
		return err
	}

	name := needsOr(s.def, ImageArchiveArtifact)
	archive, _, err := rc.Artifacts.Fetch(ctx, name)
	if err != nil {
		return engine.Fail(domain.CodeArtifactMissing,
			fmt.Errorf("failed to fetch %s: %w", name, err))
	}
	defer archive.Close()

	reference := fmt.Sprintf("%s:%s", s.def.Image.Repository, ImmutableTag(rc.Run.CommitSHA))
	if err := s.pusher.Push(ctx, reference, archive); err != nil {
		return engine.Fail(domain.CodePublishFailed, err)
	}

	alias := s.def.Image.Alias
	if alias == "" {
		alias = defaultAlias
	}
	if err := s.pusher.Tag(ctx, reference, alias); err != nil {
		return engine.Fail(domain.CodePublishFailed, err)
	}

	rc.Logger.Info("image pushed",
		zap.String("stage", s.def.Name),
		zap.String("reference", reference),
		zap.String("alias", alias))

	return runSteps(ctx, rc, s.def.Name, s.def.Steps, env, stageWorkdir(rc, s.def))
}
