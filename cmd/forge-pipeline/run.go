package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-pipeline/artifact"
	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
	"github.com/input-output-hk/catalyst-forge-pipeline/registry"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets/providers/awssm"
	envprovider "github.com/input-output-hk/catalyst-forge-pipeline/secrets/providers/env"
	"github.com/input-output-hk/catalyst-forge-pipeline/stages"
	"github.com/input-output-hk/catalyst-forge-pipeline/trigger"
)

var (
	runEvent        string
	runBranch       string
	runTargetBranch string
	runRepoPath     string
	runBaseRev      string
	runCommit       string
	runWorkdir      string
	runArtifacts    string
	runSecrets      string
)

var runCmd = &cobra.Command{
	Use:   "run <pipeline.yml>",
	Short: "Evaluate the trigger and execute the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		def, err := pipeline.LoadFile(args[0])
		if err != nil {
			return err
		}

		event, err := buildEvent()
		if err != nil {
			return err
		}
		decision, err := def.Trigger.Evaluate(event)
		if err != nil {
			return err
		}
		if !decision.Run {
			logger.Info("run skipped",
				zap.String("code", string(domain.CodeTriggerSkipped)),
				zap.String("reason", decision.Reason))
			fmt.Printf("Skipped: %s\n", decision.Reason)
			return nil
		}
		logger.Info("run admitted", zap.String("reason", decision.Reason))

		run := &domain.PipelineRun{
			ID:          uuid.NewString(),
			Repository:  def.Name,
			Branch:      runBranch,
			CommitSHA:   runCommit,
			TriggeredBy: "forge-pipeline",
			Trigger:     domain.TriggerType(runEvent),
			Status:      domain.StatusPending,
			CreatedAt:   time.Now().UTC(),
		}

		store, err := buildStore(ctx, run.ID)
		if err != nil {
			return err
		}
		manager, err := buildSecrets(ctx)
		if err != nil {
			return err
		}
		defer manager.Close()

		chain, err := stages.FromDefinition(def, buildRegistryClient())
		if err != nil {
			return err
		}

		eng, err := engine.New(engine.Config{
			Artifacts: store,
			Secrets:   manager,
			Events:    &engine.LogSink{Logger: logger},
			Logger:    logger,
			Workdir:   runWorkdir,
		})
		if err != nil {
			return err
		}

		if err := eng.Run(ctx, run, chain); err != nil {
			return fmt.Errorf("run %s %s: %w", run.ID, run.Status, err)
		}
		fmt.Printf("Run %s succeeded\n", run.ID)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runEvent, "event", "push", "trigger event type (push, pull_request, manual)")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "branch the event happened on")
	runCmd.Flags().StringVar(&runTargetBranch, "target-branch", "", "branch a pull request targets")
	runCmd.Flags().StringVar(&runRepoPath, "repo", "", "path to the local git repository for change detection")
	runCmd.Flags().StringVar(&runBaseRev, "base", "", "base revision for change detection")
	runCmd.Flags().StringVar(&runCommit, "commit", "", "commit SHA being processed")
	runCmd.Flags().StringVar(&runWorkdir, "workdir", ".", "workspace directory for stage steps")
	runCmd.Flags().StringVar(&runArtifacts, "artifacts", "local:.forge/artifacts",
		"artifact backend: local:<dir> or s3:<bucket>/<prefix>")
	runCmd.Flags().StringVar(&runSecrets, "secrets", "env", "secret provider: env or awssm")
}

// buildEvent assembles the trigger event from flags, resolving changed
// paths from the repository when --repo and --base are given.
func buildEvent() (trigger.Event, error) {
	event := trigger.Event{
		Type:         domain.TriggerType(runEvent),
		Branch:       runBranch,
		TargetBranch: runTargetBranch,
	}
	switch event.Type {
	case domain.TriggerPush, domain.TriggerPullRequest, domain.TriggerManual:
	default:
		return event, fmt.Errorf("unknown event type %q", runEvent)
	}

	if runRepoPath != "" && runBaseRev != "" && runCommit != "" {
		paths, err := trigger.ChangedFiles(runRepoPath, runBaseRev, runCommit)
		if err != nil {
			return event, fmt.Errorf("failed to resolve changed paths: %w", err)
		}
		event.ChangedPaths = paths
	}
	return event, nil
}

// buildStore creates the run-scoped artifact store from the --artifacts
// flag.
func buildStore(ctx context.Context, runID string) (artifact.Store, error) {
	backend, location, ok := strings.Cut(runArtifacts, ":")
	if !ok {
		return nil, fmt.Errorf("invalid artifact backend %q, want local:<dir> or s3:<bucket>/<prefix>", runArtifacts)
	}

	switch backend {
	case "local":
		if location == "" {
			return nil, fmt.Errorf("local artifact backend needs a directory")
		}
		return artifact.NewLocal(osfs.New(location), runID), nil
	case "s3":
		bucket, prefix, _ := strings.Cut(location, "/")
		if bucket == "" {
			return nil, fmt.Errorf("s3 artifact backend needs a bucket")
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		return artifact.NewS3(s3.NewFromConfig(cfg), bucket, prefix, runID), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", backend)
	}
}

// buildSecrets creates the secret manager from the --secrets flag.
func buildSecrets(ctx context.Context) (*secrets.Manager, error) {
	manager := secrets.NewManager(&secrets.Config{
		DefaultProvider: runSecrets,
		AutoClear:       true,
	})

	switch runSecrets {
	case "env":
		if err := manager.RegisterProvider("env", envprovider.New()); err != nil {
			return nil, err
		}
	case "awssm":
		provider, err := awssm.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS Secrets Manager provider: %w", err)
		}
		if err := manager.RegisterProvider("awssm", provider); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown secret provider %q", runSecrets)
	}
	return manager, nil
}

// buildRegistryClient creates the registry client for the deploy stage.
// Static credentials come from FORGE_REGISTRY, FORGE_REGISTRY_USERNAME, and
// FORGE_REGISTRY_PASSWORD; otherwise the Docker credential chain applies.
func buildRegistryClient() *registry.Client {
	var opts []registry.Option
	host := os.Getenv("FORGE_REGISTRY")
	user := os.Getenv("FORGE_REGISTRY_USERNAME")
	if host != "" && user != "" {
		opts = append(opts, registry.WithStaticAuth(host, user, os.Getenv("FORGE_REGISTRY_PASSWORD")))
	}
	return registry.New(opts...)
}
