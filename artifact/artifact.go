// Package artifact provides the run-scoped artifact store used to hand
// files between pipeline stages: the coverage report from test to
// quality-scan and the image archive from build to deploy.
//
// Artifacts exist only for the duration of a single run. A stage publishing
// an artifact makes it available to every later stage; fetching an artifact
// that was never published is a deterministic ErrNotFound. When the run
// ends the store is discarded and all content removed.
package artifact

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/opencontainers/go-digest"
)

var (
	// ErrNotFound indicates the named artifact was never published in this
	// run (or the store was discarded).
	ErrNotFound = errors.New("artifact not found")

	// ErrDiscarded indicates the store was already discarded; the run has
	// ended and no artifact operations are valid.
	ErrDiscarded = errors.New("artifact store discarded")

	// ErrInvalidName indicates the artifact name is empty or contains path
	// separators.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Info describes a published artifact.
type Info struct {
	// Name is the artifact name within the run (e.g., "coverage-report").
	Name string `json:"name"`

	// MediaType is the sniffed content type of the payload.
	MediaType string `json:"media_type"`

	// Size is the payload size in bytes.
	Size int64 `json:"size"`

	// Digest is the SHA-256 digest of the payload.
	Digest digest.Digest `json:"digest"`

	// CreatedAt is when the artifact was published.
	CreatedAt time.Time `json:"created_at"`
}

// Store is the run-scoped artifact store. Implementations are safe for
// concurrent use; the engine itself is strictly sequential, but stages may
// publish from parallel steps.
type Store interface {
	// Publish stores the content under name, overwriting any artifact
	// published earlier in the same run under that name.
	Publish(ctx context.Context, name string, r io.Reader) (*Info, error)

	// Fetch returns a reader over the named artifact's content and its
	// metadata. The caller must close the reader. A missing artifact is
	// ErrNotFound.
	Fetch(ctx context.Context, name string) (io.ReadCloser, *Info, error)

	// Stat returns the named artifact's metadata without its content.
	Stat(ctx context.Context, name string) (*Info, error)

	// List returns metadata for every artifact published in this run.
	List(ctx context.Context) ([]*Info, error)

	// Discard removes all run content. The store is unusable afterwards.
	Discard(ctx context.Context) error
}

// validName reports whether name is usable as an artifact name: non-empty
// and free of path separators so it cannot escape the run's namespace.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c == '/' || c == '\\' {
			return false
		}
	}
	return true
}
