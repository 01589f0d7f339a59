package stages_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/input-output-hk/catalyst-forge-pipeline/artifact"
	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/engine"
	"github.com/input-output-hk/catalyst-forge-pipeline/executor"
	"github.com/input-output-hk/catalyst-forge-pipeline/pipeline"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
	"github.com/input-output-hk/catalyst-forge-pipeline/secrets/providers/memory"
	"github.com/input-output-hk/catalyst-forge-pipeline/stages"
)

// call records one runner invocation with its effective options.
type call struct {
	program string
	args    []string
	opts    executor.Options
}

// fakeRunner records invocations and can be scripted to fail.
type fakeRunner struct {
	calls  []call
	failOn string // program name that fails
	onRun  func(c call) error
}

func (r *fakeRunner) Run(_ context.Context, program string, args []string, opts ...executor.Option) (*executor.Result, error) {
	options := executor.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	c := call{program: program, args: args, opts: *options}
	r.calls = append(r.calls, c)

	if r.onRun != nil {
		if err := r.onRun(c); err != nil {
			return &executor.Result{ExitCode: 1, Err: err}, err
		}
	}
	if r.failOn != "" && program == r.failOn {
		err := fmt.Errorf("command %q failed: exit status 1", program)
		return &executor.Result{ExitCode: 1, Err: err}, err
	}
	return &executor.Result{ExitCode: 0}, nil
}

// fakePusher records registry pushes and alias moves.
type fakePusher struct {
	pushed  map[string][]byte
	aliases map[string]string
	pushErr error
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushed: map[string][]byte{}, aliases: map[string]string{}}
}

func (p *fakePusher) Push(_ context.Context, reference string, archive io.Reader) error {
	if p.pushErr != nil {
		return p.pushErr
	}
	data, err := io.ReadAll(archive)
	if err != nil {
		return err
	}
	p.pushed[reference] = data
	return nil
}

func (p *fakePusher) Tag(_ context.Context, reference, alias string) error {
	if _, ok := p.pushed[reference]; !ok {
		return errors.New("unknown reference")
	}
	p.aliases[alias] = reference
	return nil
}

func newRunContext(t *testing.T, runner *fakeRunner) *engine.RunContext {
	t.Helper()

	mgr := secrets.NewManager(&secrets.Config{DefaultProvider: "memory"})
	mem := memory.New()
	require.NoError(t, mem.Store(context.Background(), secrets.SecretRef{Path: "ci/sonar-token"}, []byte("sonar-secret-value")))
	require.NoError(t, mem.Store(context.Background(), secrets.SecretRef{Path: "ci/build-secret"}, []byte("build-secret-value")))
	require.NoError(t, mgr.RegisterProvider("memory", mem))

	return &engine.RunContext{
		Run: &domain.PipelineRun{
			ID:        "run-1",
			CommitSHA: "abc1234def5678",
			Branch:    "main",
		},
		Artifacts: artifact.NewLocal(memfs.New(), "artifacts"),
		Secrets:   mgr,
		Runner:    runner,
		Redactor:  executor.NewRedactor(),
		Logger:    zap.NewNop(),
		Workdir:   t.TempDir(),
	}
}

func writeWorkdirFile(t *testing.T, rc *engine.RunContext, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(rc.Workdir, name), []byte(content), 0o644))
}

func TestTestStagePublishesCoverage(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)
	writeWorkdirFile(t, rc, "coverage.xml", "<coverage/>")

	stage := stages.NewTest(pipeline.StageDef{
		Name:         "test",
		Steps:        []pipeline.StepDef{{Name: "pytest", Command: []string{"pytest", "--cov"}}},
		CoverageFile: "coverage.xml",
		Produces:     []string{"coverage-report"},
	})

	require.NoError(t, stage.Run(context.Background(), rc))
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "pytest", runner.calls[0].program)
	assert.Equal(t, rc.Workdir, runner.calls[0].opts.WorkingDir)

	info, err := rc.Artifacts.Stat(context.Background(), "coverage-report")
	require.NoError(t, err)
	assert.Equal(t, int64(len("<coverage/>")), info.Size)
}

func TestTestStageMissingCoverageFails(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)

	stage := stages.NewTest(pipeline.StageDef{
		Name:         "test",
		Steps:        []pipeline.StepDef{{Name: "pytest", Command: []string{"pytest"}}},
		CoverageFile: "coverage.xml",
	})

	err := stage.Run(context.Background(), rc)
	require.Error(t, err)

	var stageErr *engine.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.CodePublishFailed, stageErr.Code)
}

func TestTestStageFailingStepStopsBeforePublish(t *testing.T) {
	runner := &fakeRunner{failOn: "pytest"}
	rc := newRunContext(t, runner)
	writeWorkdirFile(t, rc, "coverage.xml", "<coverage/>")

	stage := stages.NewTest(pipeline.StageDef{
		Name:         "test",
		Steps:        []pipeline.StepDef{{Name: "pytest", Command: []string{"pytest"}}},
		CoverageFile: "coverage.xml",
	})

	err := stage.Run(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `step "pytest" failed`)

	_, statErr := rc.Artifacts.Stat(context.Background(), "coverage-report")
	assert.ErrorIs(t, statErr, artifact.ErrNotFound)
}

func TestQualityScanFetchesCoverageAndInjectsToken(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)

	_, err := rc.Artifacts.Publish(context.Background(), "coverage-report", strings.NewReader("<coverage/>"))
	require.NoError(t, err)

	stage := stages.NewQualityScan(pipeline.StageDef{
		Name:           "quality-scan",
		NeedsArtifacts: []string{"coverage-report"},
		CoverageFile:   "coverage.xml",
		Steps:          []pipeline.StepDef{{Name: "scanner", Command: []string{"sonar-scanner"}}},
		Secrets: []pipeline.SecretDef{
			{Name: "SONAR_TOKEN", Ref: "ci/sonar-token"},
		},
	})

	require.NoError(t, stage.Run(context.Background(), rc))

	content, err := os.ReadFile(filepath.Join(rc.Workdir, "coverage.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<coverage/>", string(content))

	require.Len(t, runner.calls, 1)
	assert.Equal(t, "sonar-secret-value", runner.calls[0].opts.Env["SONAR_TOKEN"])

	masked := rc.Redactor.Redact("token is sonar-secret-value here")
	assert.NotContains(t, masked, "sonar-secret-value")
}

func TestQualityScanMissingCoverageFails(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)

	stage := stages.NewQualityScan(pipeline.StageDef{Name: "quality-scan"})

	err := stage.Run(context.Background(), rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	var stageErr *engine.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.CodeArtifactMissing, stageErr.Code)
	assert.Empty(t, runner.calls, "scanner must not run without its input")
}

func TestProvisionApplyFailureIsTerminal(t *testing.T) {
	runner := &fakeRunner{failOn: "terraform"}
	rc := newRunContext(t, runner)

	stage := stages.NewProvision(pipeline.StageDef{
		Name: "provision",
		Steps: []pipeline.StepDef{
			{Name: "apply", Command: []string{"terraform", "apply", "-auto-approve"}},
		},
	})

	err := stage.Run(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not rolled back")
}

func TestProvisionRunsStepsInOrder(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)

	stage := stages.NewProvision(pipeline.StageDef{
		Name: "provision",
		Steps: []pipeline.StepDef{
			{Name: "init", Command: []string{"terraform", "init"}},
			{Name: "plan", Command: []string{"terraform", "plan"}},
			{Name: "apply", Command: []string{"terraform", "apply", "-auto-approve"}},
		},
	})

	require.NoError(t, stage.Run(context.Background(), rc))
	require.Len(t, runner.calls, 3)
	assert.Equal(t, []string{"init"}, runner.calls[0].args)
	assert.Equal(t, []string{"plan"}, runner.calls[1].args)
	assert.Equal(t, []string{"apply", "-auto-approve"}, runner.calls[2].args)
}

func TestBuildPublishesArchive(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)
	writeWorkdirFile(t, rc, "image.tar", "tarball-bytes")

	stage := stages.NewBuild(pipeline.StageDef{
		Name: "build",
		Steps: []pipeline.StepDef{
			{Name: "docker-build", Command: append([]string{"docker", "build", "-t", "app:local"},
				append(stages.SecretMountArgs("app", "APP_BUILD_SECRET"), ".")...)},
			{Name: "docker-save", Command: []string{"docker", "save", "-o", "image.tar", "app:local"}},
		},
		Secrets:     []pipeline.SecretDef{{Name: "APP_BUILD_SECRET", Ref: "ci/build-secret"}},
		ArchiveFile: "image.tar",
	})

	require.NoError(t, stage.Run(context.Background(), rc))
	require.Len(t, runner.calls, 2)
	assert.Equal(t, "build-secret-value", runner.calls[0].opts.Env["APP_BUILD_SECRET"])
	assert.Contains(t, runner.calls[0].args, "--secret")

	info, err := rc.Artifacts.Stat(context.Background(), "image-archive")
	require.NoError(t, err)
	assert.Equal(t, int64(len("tarball-bytes")), info.Size)
}

func TestBuildRejectsSecretBuildArg(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)

	stage := stages.NewBuild(pipeline.StageDef{
		Name: "build",
		Steps: []pipeline.StepDef{
			{Name: "docker-build", Command: []string{
				"docker", "build", "--build-arg", "APP_BUILD_SECRET=$APP_BUILD_SECRET", ".",
			}},
		},
		Secrets:     []pipeline.SecretDef{{Name: "APP_BUILD_SECRET", Ref: "ci/build-secret"}},
		ArchiveFile: "image.tar",
	})

	err := stage.Run(context.Background(), rc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret mount")
	assert.Empty(t, runner.calls, "nothing runs when the definition leaks a secret")
}

func TestDeployPushesImmutableTagAndAlias(t *testing.T) {
	runner := &fakeRunner{}
	rc := newRunContext(t, runner)
	pusher := newFakePusher()

	_, err := rc.Artifacts.Publish(context.Background(), "image-archive", strings.NewReader("tarball"))
	require.NoError(t, err)

	stage := stages.NewDeploy(pipeline.StageDef{
		Name:           "deploy",
		NeedsArtifacts: []string{"image-archive"},
		Image: &pipeline.ImageDef{
			Repository: "registry.example.com/web-service",
		},
	}, pusher)

	require.NoError(t, stage.Run(context.Background(), rc))

	immutable := "registry.example.com/web-service:abc1234"
	assert.Equal(t, []byte("tarball"), pusher.pushed[immutable])
	assert.Equal(t, immutable, pusher.aliases["latest"])
}

func TestDeployCustomAlias(t *testing.T) {
	rc := newRunContext(t, &fakeRunner{})
	pusher := newFakePusher()

	_, err := rc.Artifacts.Publish(context.Background(), "image-archive", strings.NewReader("tarball"))
	require.NoError(t, err)

	stage := stages.NewDeploy(pipeline.StageDef{
		Name:  "deploy",
		Image: &pipeline.ImageDef{Repository: "registry.example.com/app", Alias: "stable"},
	}, pusher)

	require.NoError(t, stage.Run(context.Background(), rc))
	assert.Contains(t, pusher.aliases, "stable")
	assert.NotContains(t, pusher.aliases, "latest")
}

func TestDeployMissingArchiveFails(t *testing.T) {
	rc := newRunContext(t, &fakeRunner{})
	pusher := newFakePusher()

	stage := stages.NewDeploy(pipeline.StageDef{
		Name:  "deploy",
		Image: &pipeline.ImageDef{Repository: "registry.example.com/app"},
	}, pusher)

	err := stage.Run(context.Background(), rc)
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
	assert.Empty(t, pusher.pushed)
}

func TestDeployPushFailure(t *testing.T) {
	rc := newRunContext(t, &fakeRunner{})
	pusher := newFakePusher()
	pusher.pushErr = errors.New("registry unreachable")

	_, err := rc.Artifacts.Publish(context.Background(), "image-archive", strings.NewReader("tarball"))
	require.NoError(t, err)

	stage := stages.NewDeploy(pipeline.StageDef{
		Name:  "deploy",
		Image: &pipeline.ImageDef{Repository: "registry.example.com/app"},
	}, pusher)

	err = stage.Run(context.Background(), rc)
	require.Error(t, err)

	var stageErr *engine.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.CodePublishFailed, stageErr.Code)
}

func TestImmutableTag(t *testing.T) {
	assert.Equal(t, "abc1234", stages.ImmutableTag("abc1234def5678"))
	assert.Equal(t, "ab12", stages.ImmutableTag("ab12"))
}

func TestFromDefinition(t *testing.T) {
	def := &pipeline.Definition{
		Name: "p",
		Stages: []pipeline.StageDef{
			{Name: "test"},
			{Name: "quality-scan"},
			{Name: "provision"},
			{Name: "build"},
			{Name: "deploy", Image: &pipeline.ImageDef{Repository: "r/app"}},
		},
	}

	chain, err := stages.FromDefinition(def, newFakePusher())
	require.NoError(t, err)
	require.Len(t, chain, 5)
	assert.Equal(t, "test", chain[0].Name())
	assert.Equal(t, "deploy", chain[4].Name())
}

func TestFromDefinitionUnknownStage(t *testing.T) {
	def := &pipeline.Definition{
		Stages: []pipeline.StageDef{{Name: "fuzz"}},
	}

	_, err := stages.FromDefinition(def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown stage "fuzz"`)
}

func TestFromDefinitionDeployNeedsPusher(t *testing.T) {
	def := &pipeline.Definition{
		Stages: []pipeline.StageDef{{Name: "deploy"}},
	}

	_, err := stages.FromDefinition(def, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry client")
}
