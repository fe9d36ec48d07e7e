// Package secrets loads the identity-provider application configuration
// from AWS Secrets Manager.
package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"

	"github.com/your-org/assetflow/internal/asset"
)

// AppConfig is the client-credentials application stored in the secret.
type AppConfig struct {
	CognitoDomain string `json:"cognito_domain"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	Scope         string `json:"scope"`
}

func (c AppConfig) String() string {
	return fmt.Sprintf("AppConfig{domain=%s client_id=%s scope=%q}", c.CognitoDomain, c.ClientID, c.Scope)
}

// SecretsManagerAPI is the subset of the Secrets Manager client in use.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Store reads AppConfig secrets.
type Store struct {
	client SecretsManagerAPI
}

func NewStore(client SecretsManagerAPI) *Store {
	return &Store{client: client}
}

func NewFromConfig(cfg aws.Config) *Store {
	return NewStore(secretsmanager.NewFromConfig(cfg))
}

// AppConfig fetches and decodes secretID.
func (s *Store) AppConfig(ctx context.Context, secretID string) (*AppConfig, error) {
	if secretID == "" {
		return nil, fmt.Errorf("%w: app secret id is empty", asset.ErrSchema)
	}
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "AccessDeniedException" {
			return nil, fmt.Errorf("%w: read secret %s: %w", asset.ErrAuthorization, secretID, err)
		}
		return nil, fmt.Errorf("%w: read secret %s: %w", asset.ErrTransport, secretID, err)
	}

	var cfg AppConfig
	if err := json.Unmarshal([]byte(aws.ToString(out.SecretString)), &cfg); err != nil {
		return nil, fmt.Errorf("%w: decode secret %s: %v", asset.ErrSchema, secretID, err)
	}
	if cfg.CognitoDomain == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: secret %s lacks cognito_domain, client_id or client_secret", asset.ErrSchema, secretID)
	}
	return &cfg, nil
}
