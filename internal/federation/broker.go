package federation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Harshitk-cp/tenantops/internal/config"
	"github.com/Harshitk-cp/tenantops/internal/domain"
	"github.com/Harshitk-cp/tenantops/internal/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	ststypes "github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	minSessionSeconds = 900
	maxSessionSeconds = 43200
)

// RoleAssumer is the subset of the STS client used here.
type RoleAssumer interface {
	AssumeRole(ctx context.Context, in *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Broker exchanges a tenant session for a console sign-in URL backed by a
// short-lived role credential.
type Broker struct {
	sts     RoleAssumer
	signin  *SigninClient
	metrics *metrics.Metrics
	logger  *zap.Logger

	clock           clock.Clock
	issuer          string
	destination     string
	defaultDuration time.Duration
	callTimeout     time.Duration
}

func NewBroker(assumer RoleAssumer, signin *SigninClient, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Broker {
	return &Broker{
		sts:             assumer,
		signin:          signin,
		metrics:         m,
		logger:          logger,
		clock:           clock.New(),
		issuer:          cfg.FederationIssuer,
		destination:     cfg.ConsoleDestination,
		defaultDuration: cfg.DefaultCredentialDuration,
		callTimeout:     cfg.CallTimeout,
	}
}

func (b *Broker) SetClock(clk clock.Clock) {
	b.clock = clk
}

// IssueConsoleAccess runs the whole exchange. Any failing step aborts it and
// no credential material leaves this function.
func (b *Broker) IssueConsoleAccess(ctx context.Context, req domain.ConsoleAccessRequest) (*domain.ConsoleSession, error) {
	session, err := b.issue(ctx, req)
	if err != nil {
		result := "error"
		var stepErr *StepError
		if errors.As(err, &stepErr) {
			result = string(stepErr.Step)
		}
		b.metrics.FederationRequestsTotal.WithLabelValues(result).Inc()
		b.logger.Warn("console access denied",
			zap.String("tenant_id", req.TenantID),
			zap.String("participant_id", req.ParticipantID),
			zap.Error(err))
		return nil, err
	}

	b.metrics.FederationRequestsTotal.WithLabelValues("ok").Inc()
	b.logger.Info("console access issued",
		zap.String("tenant_id", req.TenantID),
		zap.String("participant_id", req.ParticipantID),
		zap.Time("expires_at", session.ExpiresAt))
	return session, nil
}

func (b *Broker) issue(ctx context.Context, req domain.ConsoleAccessRequest) (*domain.ConsoleSession, error) {
	if req.TenantID == "" || req.ParticipantID == "" || req.SessionID == "" || req.RoleARN == "" {
		return nil, fmt.Errorf("%w: tenant, participant, session and role are required", ErrInvalidRequest)
	}

	duration := req.DurationSeconds
	if duration == 0 {
		duration = int32(b.defaultDuration / time.Second)
	}
	if duration < minSessionSeconds || duration > maxSessionSeconds {
		return nil, fmt.Errorf("%w: duration must be between %d and %d seconds", ErrInvalidRequest, minSessionSeconds, maxSessionSeconds)
	}

	name := SessionName(req.TenantID, req.ParticipantID, req.SessionID)
	cred, err := b.AssumeRole(ctx, req.RoleARN, name, duration, req.TenantID)
	if err != nil {
		return nil, err
	}

	// The console session may not outlive the credential, so its duration is the
	// credential's remaining lifetime rather than the requested one.
	remaining := int(cred.Expiration.Sub(b.clock.Now()) / time.Second)
	if remaining < minSessionSeconds {
		return nil, &StepError{Step: StepGetSigninToken, Err: ErrCredentialExpired}
	}
	if remaining > maxSessionSeconds {
		remaining = maxSessionSeconds
	}

	tokenCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()
	token, err := b.signin.GetSigninToken(tokenCtx, *cred, remaining)
	if err != nil {
		return nil, err
	}

	destination := req.Destination
	if destination == "" {
		destination = b.destination
	}
	loginURL, err := b.signin.LoginURL(token, b.issuer, destination)
	if err != nil {
		return nil, err
	}

	return &domain.ConsoleSession{URL: loginURL, ExpiresAt: cred.Expiration}, nil
}

// AssumeRole assumes roleARN and returns the credential. A response missing any
// of the four credential fields, or already expired, is rejected whole.
func (b *Broker) AssumeRole(ctx context.Context, roleARN, sessionName string, durationSeconds int32, tenantID string) (*domain.FederationCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	out, err := b.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
		DurationSeconds: aws.Int32(durationSeconds),
		Tags: []ststypes.Tag{
			{Key: aws.String("TenantId"), Value: aws.String(sanitizeSessionPart(tenantID))},
		},
	})
	if err != nil {
		return nil, &StepError{Step: StepAssumeRole, StatusCode: httpStatus(err), Err: err}
	}

	if out == nil || out.Credentials == nil {
		return nil, &StepError{Step: StepAssumeRole, Err: ErrIncompleteCredential}
	}
	c := out.Credentials
	if aws.ToString(c.AccessKeyId) == "" || aws.ToString(c.SecretAccessKey) == "" ||
		aws.ToString(c.SessionToken) == "" || c.Expiration == nil {
		return nil, &StepError{Step: StepAssumeRole, Err: ErrIncompleteCredential}
	}

	cred := &domain.FederationCredential{
		AccessKeyID:     aws.ToString(c.AccessKeyId),
		SecretAccessKey: aws.ToString(c.SecretAccessKey),
		SessionToken:    aws.ToString(c.SessionToken),
		Expiration:      *c.Expiration,
	}
	if cred.ExpiredAt(b.clock.Now()) {
		return nil, &StepError{Step: StepAssumeRole, Err: ErrCredentialExpired}
	}
	return cred, nil
}

func httpStatus(err error) int {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode()
	}
	return 0
}
