// Package trigger decides whether a repository event should start a
// pipeline run. Rules bind the pipeline to a designated branch and filter
// out changes that touch only ignored paths, such as documentation.
package trigger

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/input-output-hk/catalyst-forge-pipeline/domain"
)

// Rules configures when a pipeline runs. It is embedded in the pipeline
// definition under the "trigger" key.
type Rules struct {
	// Branch is the designated branch. Pushes to it and pull requests
	// targeting it start a run.
	Branch string `yaml:"branch"`

	// Events lists the event types that may start a run. Defaults to push
	// and pull_request when empty.
	Events []domain.TriggerType `yaml:"events,omitempty"`

	// IgnorePaths holds doublestar glob patterns. An event whose changed
	// files all match one of these patterns does not start a run.
	IgnorePaths []string `yaml:"ignore-paths,omitempty"`
}

// Event describes a repository event to evaluate against the rules.
type Event struct {
	// Type is the kind of event (push, pull_request, manual).
	Type domain.TriggerType

	// Branch is the branch the event happened on. For pull requests this is
	// the source branch.
	Branch string

	// TargetBranch is the branch a pull request targets. Empty for pushes.
	TargetBranch string

	// ChangedPaths lists the repository-relative files the event touched.
	// An empty list means the changeset is unknown and path filters do not
	// apply.
	ChangedPaths []string
}

// Decision is the outcome of evaluating an event against the rules.
type Decision struct {
	// Run reports whether a pipeline run should start.
	Run bool

	// Reason explains the decision in human-readable form.
	Reason string
}

// defaultEvents apply when a rule set does not name explicit events.
var defaultEvents = []domain.TriggerType{domain.TriggerPush, domain.TriggerPullRequest}

// Evaluate decides whether the event should start a run. Manual events
// always run regardless of branch or path filters.
func (r Rules) Evaluate(event Event) (Decision, error) {
	if event.Type == domain.TriggerManual {
		return Decision{Run: true, Reason: "manual trigger"}, nil
	}

	if !r.allowsEvent(event.Type) {
		return Decision{
			Run:    false,
			Reason: fmt.Sprintf("event type %q is not configured to trigger runs", event.Type),
		}, nil
	}

	switch event.Type {
	case domain.TriggerPush:
		if event.Branch != r.Branch {
			return Decision{
				Run:    false,
				Reason: fmt.Sprintf("push to %q does not match designated branch %q", event.Branch, r.Branch),
			}, nil
		}
	case domain.TriggerPullRequest:
		if event.TargetBranch != r.Branch {
			return Decision{
				Run:    false,
				Reason: fmt.Sprintf("pull request targets %q, not designated branch %q", event.TargetBranch, r.Branch),
			}, nil
		}
	default:
		return Decision{
			Run:    false,
			Reason: fmt.Sprintf("unknown event type %q", event.Type),
		}, nil
	}

	if len(event.ChangedPaths) > 0 && len(r.IgnorePaths) > 0 {
		allIgnored, err := r.allIgnored(event.ChangedPaths)
		if err != nil {
			return Decision{}, err
		}
		if allIgnored {
			return Decision{Run: false, Reason: "documentation-only change, all paths ignored"}, nil
		}
	}

	return Decision{Run: true, Reason: fmt.Sprintf("%s on designated branch %q", event.Type, r.Branch)}, nil
}

func (r Rules) allowsEvent(t domain.TriggerType) bool {
	events := r.Events
	if len(events) == 0 {
		events = defaultEvents
	}
	for _, e := range events {
		if e == t {
			return true
		}
	}
	return false
}

// allIgnored reports whether every changed path matches an ignore pattern.
func (r Rules) allIgnored(paths []string) (bool, error) {
	for _, p := range paths {
		matched := false
		for _, pattern := range r.IgnorePaths {
			ok, err := doublestar.Match(pattern, p)
			if err != nil {
				return false, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			return false, nil
		}
	}
	return true, nil
}
