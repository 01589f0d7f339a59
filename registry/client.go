// Package registry pushes built image archives to an OCI registry over the
// distribution protocol using ORAS. The deploy stage pushes the archive
// under an immutable commit-derived tag, then re-targets a mutable alias at
// the same manifest.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"oras.land/oras-go/v2"
	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
)

// ArtifactType identifies pushed image archives in OCI 1.1 manifests.
const ArtifactType = "application/vnd.forge.image-archive.v1"

// archiveMediaType is the media type of the archive blob layer.
const archiveMediaType = "application/vnd.forge.image-archive.layer.v1+tar"

// API is the low-level registry surface the client drives. The default
// implementation talks to a real registry via ORAS; tests inject fakes.
type API interface {
	// PushArchive pushes data as a manifest layer and tags the manifest
	// with the reference's tag.
	PushArchive(ctx context.Context, reference string, data []byte) error

	// Retag points alias at the manifest currently tagged by reference,
	// without re-uploading content.
	Retag(ctx context.Context, reference, alias string) error
}

// Client pushes image archives with retry and configurable authentication.
type Client struct {
	opts ClientOptions
	api  API
}

// New creates a registry client.
func New(opts ...Option) *Client {
	options := DefaultClientOptions()
	for _, opt := range opts {
		opt(&options)
	}

	api := options.API
	if api == nil {
		api = &orasAPI{opts: options}
	}
	return &Client{opts: options, api: api}
}

// Push uploads the archive and tags it with the reference's tag. The
// reference must include a tag; the archive must be non-empty.
func (c *Client) Push(ctx context.Context, reference string, archive io.Reader) error {
	repoPath, tag, isDigest := splitReference(reference)
	if repoPath == "" || tag == "" || isDigest {
		return fmt.Errorf("reference %q must include a repository and tag", reference)
	}

	// TODO: stream large archives instead of buffering; requires a seekable
	// source for digest computation before upload.
	data, err := io.ReadAll(archive)
	if err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("archive for %q is empty", reference)
	}

	err = c.withRetry(ctx, func() error {
		return c.api.PushArchive(ctx, reference, data)
	})
	if err != nil {
		return fmt.Errorf("failed to push %s: %w", reference, err)
	}
	return nil
}

// Tag points alias at the manifest already tagged by reference. Nothing is
// re-uploaded; only the alias tag moves.
func (c *Client) Tag(ctx context.Context, reference, alias string) error {
	repoPath, tag, isDigest := splitReference(reference)
	if repoPath == "" || tag == "" || isDigest {
		return fmt.Errorf("reference %q must include a repository and tag", reference)
	}
	if alias == "" {
		return fmt.Errorf("alias tag is required")
	}

	err := c.withRetry(ctx, func() error {
		return c.api.Retag(ctx, reference, alias)
	})
	if err != nil {
		return fmt.Errorf("failed to tag %s as %s: %w", reference, alias, err)
	}
	return nil
}

// orasAPI is the real implementation over oras-go.
type orasAPI struct {
	opts ClientOptions
}

func (o *orasAPI) PushArchive(ctx context.Context, reference string, data []byte) error {
	repo, refPart, err := o.repository(reference)
	if err != nil {
		return err
	}

	blobDesc, err := oras.PushBytes(ctx, repo, archiveMediaType, data)
	if err != nil {
		return fmt.Errorf("push blob: %w", err)
	}

	packOpts := oras.PackManifestOptions{Layers: []ocispec.Descriptor{blobDesc}}
	manDesc, err := oras.PackManifest(ctx, repo, oras.PackManifestVersion1_1, ArtifactType, packOpts)
	if err != nil {
		return fmt.Errorf("pack manifest: %w", err)
	}

	if _, err := oras.Tag(ctx, repo, manDesc.Digest.String(), refPart); err != nil {
		return fmt.Errorf("tag manifest: %w", err)
	}
	return nil
}

func (o *orasAPI) Retag(ctx context.Context, reference, alias string) error {
	repo, refPart, err := o.repository(reference)
	if err != nil {
		return err
	}

	desc, err := repo.Resolve(ctx, refPart)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", refPart, err)
	}
	if err := repo.Tag(ctx, desc, alias); err != nil {
		return fmt.Errorf("retag: %w", err)
	}
	return nil
}

// repository builds an authenticated remote repository for the reference.
// Credential precedence: custom credential func, then static credentials for
// the matching registry, then the default Docker credential chain.
func (o *orasAPI) repository(reference string) (*remote.Repository, string, error) {
	repoPath, refPart, _ := splitReference(reference)
	if repoPath == "" || refPart == "" {
		return nil, "", fmt.Errorf("invalid reference: %s", reference)
	}

	repo, err := remote.NewRepository(repoPath)
	if err != nil {
		return nil, "", fmt.Errorf("create repository: %w", err)
	}

	registryHost := repoPath
	if i := strings.Index(repoPath, "/"); i >= 0 {
		registryHost = repoPath[:i]
	}

	authClient := &auth.Client{
		Client: &http.Client{},
		Cache:  auth.NewCache(),
	}
	switch {
	case o.opts.CredentialFunc != nil:
		authClient.Credential = o.opts.CredentialFunc
	case o.opts.StaticRegistry != "" && o.opts.StaticUsername != "":
		authClient.Credential = auth.StaticCredential(o.opts.StaticRegistry, auth.Credential{
			Username: o.opts.StaticUsername,
			Password: o.opts.StaticPassword,
		})
	}
	repo.Client = authClient
	repo.PlainHTTP = o.opts.allowsPlainHTTP(registryHost)

	return repo, refPart, nil
}

// splitReference splits a full OCI reference into repository path and
// reference part (tag or digest).
//
//	localhost:5000/myrepo:latest -> ("localhost:5000/myrepo", "latest", false)
//	ghcr.io/org/name@sha256:abcd -> ("ghcr.io/org/name", "sha256:abcd", true)
//	myapp:latest                 -> ("myapp", "latest", false)
//
// Only the segment after the last slash is searched for the separator,
// which avoids mistaking a registry port for a tag. A slash-free reference
// has no path segment and therefore no port, so its colon is the tag
// separator.
func splitReference(full string) (repoPath, refPart string, isDigest bool) {
	if full == "" {
		return "", "", false
	}

	head := ""
	tail := full
	if lastSlash := strings.LastIndex(full, "/"); lastSlash != -1 {
		head = full[:lastSlash+1]
		tail = full[lastSlash+1:]
	}

	if at := strings.LastIndex(tail, "@"); at != -1 {
		return head + tail[:at], tail[at+1:], true
	}
	if colon := strings.LastIndex(tail, ":"); colon != -1 {
		return head + tail[:colon], tail[colon+1:], false
	}
	return full, "", false
}
