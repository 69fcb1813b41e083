package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// SecretsManagerClient defines a minimal interface for AWS Secrets Manager
type SecretsManagerClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsLoader loads secrets from AWS Secrets Manager
type AWSSecretsLoader struct {
	client SecretsManagerClient
}

// NewAWSSecretsLoader creates a new loader with default AWS config
func NewAWSSecretsLoader(ctx context.Context) (*AWSSecretsLoader, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewAWSSecretsLoaderWithClient(secretsmanager.NewFromConfig(cfg)), nil
}

func NewAWSSecretsLoaderWithClient(c SecretsManagerClient) *AWSSecretsLoader {
	return &AWSSecretsLoader{client: c}
}

// GetSecret retrieves a secret value from AWS Secrets Manager
func (l *AWSSecretsLoader) GetSecret(ctx context.Context, secretName string) (string, error) {
	logger.Infof("[SecretsLoader] Retrieving secret: %s", secretName)

	result, err := l.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretName),
	})
	if err != nil {
		logger.Errorf("[SecretsLoader] Failed to get secret %s: %v", secretName, err)
		return "", fmt.Errorf("failed to get secret: %w", err)
	}
	if result.SecretString == nil {
		logger.Errorf("[SecretsLoader] Secret value is nil: %s", secretName)
		return "", fmt.Errorf("secret value is nil")
	}

	logger.Infof("[SecretsLoader] Retrieved secret: %s", secretName)
	return *result.SecretString, nil
}

// upstreamSecret is the JSON shape accepted for the upstream secret. A plain
// string secret is also accepted and used as the payload secret.
type upstreamSecret struct {
	Secret    string `json:"secret"`
	AccountID string `json:"account_id"`
}

// ApplyUpstreamSecret fetches the named secret and copies it into cfg.Upstream.
func ApplyUpstreamSecret(ctx context.Context, l *AWSSecretsLoader, name string, cfg *UpstreamConfig) error {
	raw, err := l.GetSecret(ctx, name)
	if err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") {
		cfg.Secret = raw
		return nil
	}
	var s upstreamSecret
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fmt.Errorf("decode secret %s: %w", name, err)
	}
	if s.Secret != "" {
		cfg.Secret = s.Secret
	}
	if s.AccountID != "" {
		cfg.AccountID = s.AccountID
	}
	return nil
}
