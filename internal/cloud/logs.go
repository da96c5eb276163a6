package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
)

// LogsAPI is the subset of the CloudWatch Logs client used here.
type LogsAPI interface {
	DescribeLogGroups(ctx context.Context, in *cloudwatchlogs.DescribeLogGroupsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogGroupsOutput, error)
	CreateLogGroup(ctx context.Context, in *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	PutRetentionPolicy(ctx context.Context, in *cloudwatchlogs.PutRetentionPolicyInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutRetentionPolicyOutput, error)
	DeleteLogGroup(ctx context.Context, in *cloudwatchlogs.DeleteLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DeleteLogGroupOutput, error)
}

// LogGroups manages per-tenant log groups and reports idempotent cases as
// outcomes instead of errors.
type LogGroups struct {
	api LogsAPI
}

func NewLogGroups(api LogsAPI) *LogGroups {
	return &LogGroups{api: api}
}

// EnsureLogGroup checks for the group first and creates it only when absent.
// A create that loses a race with a concurrent invocation still reports
// OutcomeAlreadyExisted.
func (l *LogGroups) EnsureLogGroup(ctx context.Context, name string, tags map[string]string) (domain.ResourceOutcome, error) {
	exists, err := l.exists(ctx, name)
	if err != nil {
		return "", err
	}
	if exists {
		return domain.OutcomeAlreadyExisted, nil
	}

	_, err = l.api.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(name),
		Tags:         tags,
	})
	if err != nil {
		var alreadyExists *types.ResourceAlreadyExistsException
		if errors.As(err, &alreadyExists) {
			return domain.OutcomeAlreadyExisted, nil
		}
		return "", fmt.Errorf("create log group %s: %w", name, err)
	}
	return domain.OutcomeCreated, nil
}

func (l *LogGroups) exists(ctx context.Context, name string) (bool, error) {
	out, err := l.api.DescribeLogGroups(ctx, &cloudwatchlogs.DescribeLogGroupsInput{
		LogGroupNamePrefix: aws.String(name),
	})
	if err != nil {
		return false, fmt.Errorf("describe log group %s: %w", name, err)
	}
	for _, g := range out.LogGroups {
		if aws.ToString(g.LogGroupName) == name {
			return true, nil
		}
	}
	return false, nil
}

// PutRetention sets the group's retention in place.
func (l *LogGroups) PutRetention(ctx context.Context, name string, days int) error {
	_, err := l.api.PutRetentionPolicy(ctx, &cloudwatchlogs.PutRetentionPolicyInput{
		LogGroupName:    aws.String(name),
		RetentionInDays: aws.Int32(int32(days)),
	})
	if err != nil {
		return fmt.Errorf("put retention %d days on %s: %w", days, name, err)
	}
	return nil
}

func (l *LogGroups) DeleteLogGroup(ctx context.Context, name string) (domain.ResourceOutcome, error) {
	_, err := l.api.DeleteLogGroup(ctx, &cloudwatchlogs.DeleteLogGroupInput{
		LogGroupName: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return domain.OutcomeNotFound, nil
		}
		return "", fmt.Errorf("delete log group %s: %w", name, err)
	}
	return domain.OutcomeDeleted, nil
}
