package cloud

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used here.
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketTagging(ctx context.Context, in *s3.PutBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.PutBucketTaggingOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketOutput, error)
}

// Buckets manages dedicated per-tenant buckets.
type Buckets struct {
	api    S3API
	region string
}

func NewBuckets(api S3API, region string) *Buckets {
	return &Buckets{api: api, region: region}
}

func (b *Buckets) EnsureBucket(ctx context.Context, name string, tags map[string]string) (domain.ResourceOutcome, error) {
	_, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		return domain.OutcomeAlreadyExisted, nil
	}
	if !isBucketMissing(err) {
		return "", fmt.Errorf("head bucket %s: %w", name, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(name)}
	// us-east-1 rejects an explicit location constraint.
	if b.region != "" && b.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}

	outcome := domain.OutcomeCreated
	if _, err := b.api.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !errors.As(err, &owned) {
			return "", fmt.Errorf("create bucket %s: %w", name, err)
		}
		outcome = domain.OutcomeAlreadyExisted
	}

	if len(tags) > 0 {
		if _, err := b.api.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
			Bucket:  aws.String(name),
			Tagging: &types.Tagging{TagSet: tagSet(tags)},
		}); err != nil {
			return "", fmt.Errorf("tag bucket %s: %w", name, err)
		}
	}
	return outcome, nil
}

// DeleteBucket empties the bucket and deletes it. A missing bucket is
// OutcomeNotFound.
func (b *Buckets) DeleteBucket(ctx context.Context, name string) (domain.ResourceOutcome, error) {
	pages := s3.NewListObjectsV2Paginator(b.api, &s3.ListObjectsV2Input{Bucket: aws.String(name)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			if isBucketMissing(err) {
				return domain.OutcomeNotFound, nil
			}
			return "", fmt.Errorf("list objects in %s: %w", name, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err := b.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(name),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		}); err != nil {
			return "", fmt.Errorf("empty bucket %s: %w", name, err)
		}
	}

	if _, err := b.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		if isBucketMissing(err) {
			return domain.OutcomeNotFound, nil
		}
		return "", fmt.Errorf("delete bucket %s: %w", name, err)
	}
	return domain.OutcomeDeleted, nil
}

func isBucketMissing(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchBucket) {
		return true
	}
	switch apiErrorCode(err) {
	case "NotFound", "NoSuchBucket":
		return true
	}
	return false
}

func tagSet(tags map[string]string) []types.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	set := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		set = append(set, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return set
}
