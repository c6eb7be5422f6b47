package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pos-service/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	buckets map[string]bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), buckets: make(map[string]bool)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !f.buckets[aws.ToString(in.Bucket)] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.buckets[aws.ToString(in.Bucket)] = true
	return &s3.CreateBucketOutput{}, nil
}

func newTestStore(t *testing.T, client ObjectAPI) *S3ImageStore {
	s, err := NewS3ImageStore(config.StorageConfig{
		Endpoint: "localhost:9000",
		Bucket:   "pos-images",
	}, WithClient(client))
	require.NoError(t, err)
	return s
}

func TestSaveAndDelete(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)
	ctx := context.Background()

	url, err := s.Save(ctx, "tenants/t1/products/p1/a.png", strings.NewReader("png"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9000/pos-images/tenants/t1/products/p1/a.png", url)
	assert.Equal(t, []byte("png"), fake.objects["tenants/t1/products/p1/a.png"])

	require.NoError(t, s.DeleteURL(ctx, url))
	assert.Empty(t, fake.objects)
}

func TestKeyFromURL(t *testing.T) {
	s, err := NewS3ImageStore(config.StorageConfig{
		Bucket:    "pos-images",
		PublicURL: "https://cdn.example.com/images/",
	}, WithClient(newFakeS3()))
	require.NoError(t, err)

	key, err := s.KeyFromURL("https://cdn.example.com/images/tenants/t1/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "tenants/t1/x.jpg", key)

	_, err = s.KeyFromURL("https://elsewhere.example.com/x.jpg")
	assert.ErrorIs(t, err, ErrForeignURL)
}

func TestImageKey(t *testing.T) {
	k := ImageKey("t1", "p1", "", "Photo.JPG")
	assert.True(t, strings.HasPrefix(k, "tenants/t1/products/p1/"))
	assert.True(t, strings.HasSuffix(k, ".jpg"))

	v := ImageKey("t1", "p1", "v1", "a.png")
	assert.True(t, strings.HasPrefix(v, "tenants/t1/products/p1/variants/v1/"))
	assert.NotEqual(t, ImageKey("t1", "p1", "", "a.png"), ImageKey("t1", "p1", "", "a.png"))
}

func TestEnsureBucket(t *testing.T) {
	fake := newFakeS3()
	s := newTestStore(t, fake)

	require.NoError(t, s.EnsureBucket(context.Background()))
	assert.True(t, fake.buckets["pos-images"])
	require.NoError(t, s.EnsureBucket(context.Background()))
}

type failingS3 struct{ *fakeS3 }

func (f failingS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return nil, errors.New("access denied")
}

func TestEnsureBucket_OtherError(t *testing.T) {
	s := newTestStore(t, failingS3{newFakeS3()})
	assert.Error(t, s.EnsureBucket(context.Background()))
}
