package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
)

// Provision runs the infrastructure tool steps (init, plan, apply) with
// cloud credentials injected from the secret manager. An apply failure is
// terminal: nothing is rolled back, the run simply fails.
type Provision struct {
	def pipeline.StageDef
}

// NewProvision creates the provision stage from its definition.
func NewProvision(def pipeline.StageDef) *Provision {
	return &Provision{def: def}
}

// Name implements the engine.Stage interface.
func (s *Provision) Name() string { return s.def.Name }

// Needs implements the engine.Stage interface.
func (s *Provision) Needs() []string { return s.def.NeedsArtifacts }

// Produces implements the engine.Stage interface.
func (s *Provision) Produces() []string { return s.def.Produces }

// Run resolves credentials and executes the infrastructure steps in order.
func (s *Provision) Run(ctx context.Context, rc *engine.RunContext) error {
	env, err := resolveStageSecrets(ctx, rc, s.def.Secrets)
	if err != nil {
		return err
	}
	workdir := stageWorkdir(rc, s.def)

	for _, step := range s.def.Steps {
		if err := runStep(ctx, rc, s.def.Name, step, env, workdir); err != nil {
			if isApplyStep(step) {
				return fmt.Errorf("infrastructure apply failed, provisioned resources are not rolled back: %w", err)
			}
			return err
		}
	}
	return nil
}

// isApplyStep identifies the mutating step of the infrastructure tool.
func isApplyStep(step pipeline.StepDef) bool {
	if strings.Contains(step.Name, "apply") {
		return true
	}
	for _, arg := range step.Command {
		if arg == "apply" {
			return true
		}
	}
	return false
}
