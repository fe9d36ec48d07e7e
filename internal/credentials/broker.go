// Package credentials obtains short-lived delegated credentials by assuming
// a role in another account.
package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/your-org/assetflow/internal/asset"
)

// Session names tag the assumed role for audit trails on the remote account.
const (
	DiscoverySessionName = "veda-data-pipelines_s3-discovery"
	TransferSessionName  = "veda-data-pipelines_data-transfer"
)

// STSAPI is the subset of the STS client the broker uses.
type STSAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

// Broker assumes roles. It never caches: every call returns a fresh set.
type Broker struct {
	client STSAPI
	logger *zap.Logger
}

// NewBroker constructs a Broker over client.
func NewBroker(client STSAPI, logger *zap.Logger) *Broker {
	return &Broker{client: client, logger: logger}
}

// NewFromConfig constructs a Broker with an STS client built from cfg.
func NewFromConfig(cfg aws.Config, logger *zap.Logger) *Broker {
	return NewBroker(sts.NewFromConfig(cfg), logger)
}

// AssumeRole requests temporary credentials for roleARN tagged with
// sessionName. Failures are not retried.
func (b *Broker) AssumeRole(ctx context.Context, roleARN, sessionName string) (*asset.Credentials, error) {
	if roleARN == "" {
		return nil, fmt.Errorf("%w: role arn is empty", asset.ErrSchema)
	}

	out, err := b.client.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(roleARN),
		RoleSessionName: aws.String(sessionName),
	})
	if err != nil {
		b.logger.Error("assume role failed",
			zap.String("role_arn", roleARN),
			zap.String("session_name", sessionName),
			zap.Error(err),
		)
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: assume role %s: %w", asset.ErrAuthorization, roleARN, err)
		}
		return nil, fmt.Errorf("%w: assume role %s: %w", asset.ErrTransport, roleARN, err)
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("%w: assume role %s returned no credentials", asset.ErrAuthorization, roleARN)
	}

	creds := &asset.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
	}
	if out.Credentials.Expiration != nil {
		creds.Expiration = *out.Credentials.Expiration
	}

	b.logger.Info("assumed role",
		zap.String("role_arn", roleARN),
		zap.String("session_name", sessionName),
		zap.Time("expires", creds.Expiration),
	)
	return creds, nil
}
