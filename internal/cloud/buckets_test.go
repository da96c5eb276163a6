package cloud

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3API struct {
	buckets   map[string][]string
	createErr error

	createInputs []*s3.CreateBucketInput
	tagged       map[string][]types.Tag
	deletedKeys  []string
}

func newFakeS3API() *fakeS3API {
	return &fakeS3API{buckets: make(map[string][]string), tagged: make(map[string][]types.Tag)}
}

func (f *fakeS3API) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if _, ok := f.buckets[aws.ToString(in.Bucket)]; !ok {
		return nil, &types.NotFound{Message: aws.String("not found")}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3API) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createInputs = append(f.createInputs, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.buckets[aws.ToString(in.Bucket)] = nil
	return &s3.CreateBucketOutput{}, nil
}

func (f *fakeS3API) PutBucketTagging(ctx context.Context, in *s3.PutBucketTaggingInput, _ ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error) {
	f.tagged[aws.ToString(in.Bucket)] = in.Tagging.TagSet
	return &s3.PutBucketTaggingOutput{}, nil
}

func (f *fakeS3API) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	keys, ok := f.buckets[aws.ToString(in.Bucket)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket does not exist"}
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3API) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	for _, obj := range in.Delete.Objects {
		f.deletedKeys = append(f.deletedKeys, aws.ToString(obj.Key))
	}
	f.buckets[aws.ToString(in.Bucket)] = nil
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3API) DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, _ ...func(*s3.Options)) (*s3.DeleteBucketOutput, error) {
	name := aws.ToString(in.Bucket)
	if _, ok := f.buckets[name]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket does not exist"}
	}
	delete(f.buckets, name)
	return &s3.DeleteBucketOutput{}, nil
}

func TestBuckets_EnsureCreatesAndTags(t *testing.T) {
	api := newFakeS3API()
	b := NewBuckets(api, "eu-west-1")

	outcome, err := b.EnsureBucket(context.Background(), "tenantops-tenant-t-2", map[string]string{"tenant": "t-2", "tier": "ENTERPRISE"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCreated, outcome)

	require.Len(t, api.createInputs, 1)
	require.NotNil(t, api.createInputs[0].CreateBucketConfiguration)
	assert.Equal(t, types.BucketLocationConstraint("eu-west-1"), api.createInputs[0].CreateBucketConfiguration.LocationConstraint)

	tags := api.tagged["tenantops-tenant-t-2"]
	require.Len(t, tags, 2)
	assert.Equal(t, "tenant", aws.ToString(tags[0].Key))
	assert.Equal(t, "tier", aws.ToString(tags[1].Key))
}

func TestBuckets_EnsureUSEast1OmitsLocation(t *testing.T) {
	api := newFakeS3API()
	b := NewBuckets(api, "us-east-1")

	_, err := b.EnsureBucket(context.Background(), "tenantops-tenant-t-2", nil)
	require.NoError(t, err)
	require.Len(t, api.createInputs, 1)
	assert.Nil(t, api.createInputs[0].CreateBucketConfiguration)
}

func TestBuckets_EnsureExisting(t *testing.T) {
	api := newFakeS3API()
	api.buckets["tenantops-tenant-t-2"] = nil
	b := NewBuckets(api, "us-east-1")

	outcome, err := b.EnsureBucket(context.Background(), "tenantops-tenant-t-2", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyExisted, outcome)
	assert.Empty(t, api.createInputs)
}

func TestBuckets_EnsureOwnedByYouRace(t *testing.T) {
	api := newFakeS3API()
	api.createErr = &types.BucketAlreadyOwnedByYou{Message: aws.String("owned")}
	b := NewBuckets(api, "us-east-1")

	outcome, err := b.EnsureBucket(context.Background(), "tenantops-tenant-t-2", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeAlreadyExisted, outcome)
}

func TestBuckets_EnsureForeignBucketFails(t *testing.T) {
	api := newFakeS3API()
	api.createErr = &types.BucketAlreadyExists{Message: aws.String("taken")}
	b := NewBuckets(api, "us-east-1")

	_, err := b.EnsureBucket(context.Background(), "tenantops-tenant-t-2", nil)
	require.Error(t, err)
	var exists *types.BucketAlreadyExists
	assert.True(t, errors.As(err, &exists))
}

func TestBuckets_DeleteEmptiesThenDeletes(t *testing.T) {
	api := newFakeS3API()
	api.buckets["tenantops-tenant-t-2"] = []string{"a.log", "b.log"}
	b := NewBuckets(api, "us-east-1")
	ctx := context.Background()

	outcome, err := b.DeleteBucket(ctx, "tenantops-tenant-t-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDeleted, outcome)
	assert.ElementsMatch(t, []string{"a.log", "b.log"}, api.deletedKeys)

	outcome, err = b.DeleteBucket(ctx, "tenantops-tenant-t-2")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNotFound, outcome)
}
