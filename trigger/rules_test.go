package trigger_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
	"github.com/input-output-hk/catalyst-forge-pipeline/trigger"
)

func mainRules() trigger.Rules {
	return trigger.Rules{
		Branch:      "main",
		IgnorePaths: []string{"docs/**", "**/*.md"},
	}
}

func TestPushToDesignatedBranchRuns(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:         domain.TriggerPush,
		Branch:       "main",
		ChangedPaths: []string{"internal/server/handler.go"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Run)
}

func TestPushToOtherBranchSkipped(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:   domain.TriggerPush,
		Branch: "feature/login",
	})
	require.NoError(t, err)
	assert.False(t, decision.Run)
	assert.Contains(t, decision.Reason, "does not match designated branch")
}

func TestPullRequestTargetingDesignatedBranchRuns(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:         domain.TriggerPullRequest,
		Branch:       "feature/login",
		TargetBranch: "main",
		ChangedPaths: []string{"cmd/app/main.go"},
	})
	require.NoError(t, err)
	assert.True(t, decision.Run)
}

func TestPullRequestTargetingOtherBranchSkipped(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:         domain.TriggerPullRequest,
		TargetBranch: "develop",
	})
	require.NoError(t, err)
	assert.False(t, decision.Run)
}

func TestDocumentationOnlyChangeSkipped(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:   domain.TriggerPush,
		Branch: "main",
		ChangedPaths: []string{
			"docs/setup.md",
			"README.md",
			"docs/img/flow.md",
		},
	})
	require.NoError(t, err)
	assert.False(t, decision.Run)
	assert.Contains(t, decision.Reason, "documentation-only")
}

func TestMixedChangeRuns(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:   domain.TriggerPush,
		Branch: "main",
		ChangedPaths: []string{
			"docs/setup.md",
			"internal/db/store.go",
		},
	})
	require.NoError(t, err)
	assert.True(t, decision.Run, "one non-ignored path is enough to run")
}

func TestEmptyChangesetRuns(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:   domain.TriggerPush,
		Branch: "main",
	})
	require.NoError(t, err)
	assert.True(t, decision.Run, "unknown changeset must not suppress the run")
}

func TestManualAlwaysRuns(t *testing.T) {
	decision, err := mainRules().Evaluate(trigger.Event{
		Type:   domain.TriggerManual,
		Branch: "anything",
	})
	require.NoError(t, err)
	assert.True(t, decision.Run)
}

func TestEventFilter(t *testing.T) {
	rules := trigger.Rules{
		Branch: "main",
		Events: []domain.TriggerType{domain.TriggerPush},
	}

	decision, err := rules.Evaluate(trigger.Event{
		Type:         domain.TriggerPullRequest,
		TargetBranch: "main",
	})
	require.NoError(t, err)
	assert.False(t, decision.Run)
	assert.Contains(t, decision.Reason, "not configured")
}

func TestInvalidIgnorePattern(t *testing.T) {
	rules := trigger.Rules{
		Branch:      "main",
		IgnorePaths: []string{"docs/["},
	}

	_, err := rules.Evaluate(trigger.Event{
		Type:         domain.TriggerPush,
		Branch:       "main",
		ChangedPaths: []string{"docs/x"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ignore pattern")
}
