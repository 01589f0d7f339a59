package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gabriel-vasile/mimetype"
	"github.com/opencontainers/go-digest"
)

// digestMetaKey holds the payload digest in S3 object metadata.
const digestMetaKey = "artifact-digest"

// S3API defines the S3 operations the store uses. *s3.Client satisfies it
// directly; tests substitute fakes.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3Store is a Store backed by an S3 bucket. All objects for a run live
// under <prefix>/<runID>/ so Discard can remove the run wholesale.
type S3Store struct {
	client S3API
	bucket string
	root   string

	mu        sync.Mutex
	discarded bool
}

// NewS3 creates an S3-backed store for the given run.
func NewS3(client S3API, bucket, prefix, runID string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		root:   path.Join(prefix, runID),
	}
}

// Publish implements the Store interface.
//
// TODO: switch to multipart upload for archives larger than memory; image
// archives from big builds can exceed what a single buffered PutObject
// should carry.
func (s *S3Store) Publish(ctx context.Context, name string, r io.Reader) (*Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact content: %w", err)
	}

	dgst := digest.FromBytes(data)
	mediaType := mimetype.Detect(data).String()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mediaType),
		Metadata:    map[string]string{digestMetaKey: dgst.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload artifact %q: %w", name, err)
	}

	return &Info{
		Name:      name,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Digest:    dgst,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Fetch implements the Store interface.
func (s *S3Store) Fetch(ctx context.Context, name string) (io.ReadCloser, *Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, nil, err
	}
	if !validName(name) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to download artifact %q: %w", name, err)
	}

	info := &Info{
		Name:      name,
		MediaType: aws.ToString(out.ContentType),
		Size:      aws.ToInt64(out.ContentLength),
		Digest:    digest.Digest(out.Metadata[digestMetaKey]),
	}
	if out.LastModified != nil {
		info.CreatedAt = *out.LastModified
	}
	return out.Body, info, nil
}

// Stat implements the Store interface.
func (s *S3Store) Stat(ctx context.Context, name string) (*Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat artifact %q: %w", name, err)
	}

	info := &Info{
		Name:      name,
		MediaType: aws.ToString(out.ContentType),
		Size:      aws.ToInt64(out.ContentLength),
		Digest:    digest.Digest(out.Metadata[digestMetaKey]),
	}
	if out.LastModified != nil {
		info.CreatedAt = *out.LastModified
	}
	return info, nil
}

// List implements the Store interface.
func (s *S3Store) List(ctx context.Context) ([]*Info, error) {
	if err := s.usable(ctx); err != nil {
		return nil, err
	}

	var infos []*Info
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.root + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list artifacts: %w", err)
		}

		for _, obj := range out.Contents {
			name := path.Base(aws.ToString(obj.Key))
			info, err := s.Stat(ctx, name)
			if err != nil {
				return nil, err
			}
			infos = append(infos, info)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return infos, nil
}

// Discard implements the Store interface.
func (s *S3Store) Discard(ctx context.Context) error {
	s.mu.Lock()
	if s.discarded {
		s.mu.Unlock()
		return nil
	}
	s.discarded = true
	s.mu.Unlock()

	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.root + "/"),
			ContinuationToken: token,
		})
		if err != nil {
			return fmt.Errorf("failed to list artifacts for discard: %w", err)
		}
		if len(out.Contents) == 0 {
			return nil
		}

		objects := make([]s3types.ObjectIdentifier, 0, len(out.Contents))
		for _, obj := range out.Contents {
			objects = append(objects, s3types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete artifacts: %w", err)
		}

		if !aws.ToBool(out.IsTruncated) {
			return nil
		}
		token = out.NextContinuationToken
	}
}

func (s *S3Store) key(name string) string {
	return path.Join(s.root, name)
}

func (s *S3Store) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discarded {
		return ErrDiscarded
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	return errors.As(err, &nf) || isNoSuchKey(err)
}
