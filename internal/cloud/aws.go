package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Clients bundles the resource-management wrappers and the raw STS client used
// by the federation broker.
type Clients struct {
	Logs    *LogGroups
	Buckets *Buckets
	STS     *sts.Client
}

// NewClients loads the default AWS credential chain for cfg.AWSRegion and points
// every service at cfg.AWSEndpointURL when it is set.
func NewClients(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Clients, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.AWSEndpointURL
	logsClient := cloudwatchlogs.NewFromConfig(awsCfg, func(o *cloudwatchlogs.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			// Emulators do not serve virtual-hosted bucket names.
			o.UsePathStyle = true
		}
	})
	stsClient := sts.NewFromConfig(awsCfg, func(o *sts.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	if endpoint != "" {
		logger.Info("aws endpoint override in use", zap.String("endpoint", endpoint))
	}

	return &Clients{
		Logs:    NewLogGroups(logsClient),
		Buckets: NewBuckets(s3Client, cfg.AWSRegion),
		STS:     stsClient,
	}, nil
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
