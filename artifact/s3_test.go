package artifact_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-pipeline/artifact"
)

type fakeObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

type fakeS3 struct {
	objects map[string]fakeObject
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]fakeObject{}}
}

func (f *fakeS3) PutObject(
	_ context.Context,
	params *s3.PutObjectInput,
	_ ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = fakeObject{
		data:        data,
		contentType: aws.ToString(params.ContentType),
		metadata:    params.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(
	_ context.Context,
	params *s3.GetObjectInput,
	_ ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	modified := obj.modified
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.data)),
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.data))),
		Metadata:      obj.metadata,
		LastModified:  &modified,
	}, nil
}

func (f *fakeS3) HeadObject(
	_ context.Context,
	params *s3.HeadObjectInput,
	_ ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	obj, ok := f.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	modified := obj.modified
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.data))),
		Metadata:      obj.metadata,
		LastModified:  &modified,
	}, nil
}

func (f *fakeS3) ListObjectsV2(
	_ context.Context,
	params *s3.ListObjectsV2Input,
	_ ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(params.Prefix)
	var contents []s3types.Object
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			contents = append(contents, s3types.Object{Key: aws.String(key)})
		}
	}
	return &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(false),
	}, nil
}

func (f *fakeS3) DeleteObjects(
	_ context.Context,
	params *s3.DeleteObjectsInput,
	_ ...func(*s3.Options),
) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range params.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestS3PublishAndFetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := artifact.NewS3(client, "forge-artifacts", "runs", "run-1")

	info, err := store.Publish(ctx, "coverage-report", strings.NewReader("total: 90.0%"))
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size)

	_, ok := client.objects["runs/run-1/coverage-report"]
	assert.True(t, ok, "object keyed under prefix and run ID")

	rc, fetched, err := store.Fetch(ctx, "coverage-report")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "total: 90.0%", string(content))
	assert.Equal(t, info.Digest, fetched.Digest)
}

func TestS3FetchMissing(t *testing.T) {
	store := artifact.NewS3(newFakeS3(), "forge-artifacts", "runs", "run-1")

	_, _, err := store.Fetch(context.Background(), "image-archive")
	assert.ErrorIs(t, err, artifact.ErrNotFound)

	_, err = store.Stat(context.Background(), "image-archive")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestS3List(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := artifact.NewS3(client, "forge-artifacts", "runs", "run-1")

	_, err := store.Publish(ctx, "coverage-report", strings.NewReader("cov"))
	require.NoError(t, err)
	_, err = store.Publish(ctx, "image-archive", strings.NewReader("tar"))
	require.NoError(t, err)

	// Objects from other runs must not leak into this store's view.
	other := artifact.NewS3(client, "forge-artifacts", "runs", "run-2")
	_, err = other.Publish(ctx, "coverage-report", strings.NewReader("other"))
	require.NoError(t, err)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestS3DiscardRemovesOnlyThisRun(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	store := artifact.NewS3(client, "forge-artifacts", "runs", "run-1")
	other := artifact.NewS3(client, "forge-artifacts", "runs", "run-2")

	_, err := store.Publish(ctx, "report", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = other.Publish(ctx, "report", strings.NewReader("b"))
	require.NoError(t, err)

	require.NoError(t, store.Discard(ctx))

	assert.NotContains(t, client.objects, "runs/run-1/report")
	assert.Contains(t, client.objects, "runs/run-2/report")

	_, err = store.Publish(ctx, "late", strings.NewReader("x"))
	assert.ErrorIs(t, err, artifact.ErrDiscarded)
}
