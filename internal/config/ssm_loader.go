package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// SSMParameterStoreClient defines an interface for AWS SSM client
type SSMParameterStoreClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMLoader loads parameters from AWS Systems Manager Parameter Store
type SSMLoader struct {
	client SSMParameterStoreClient
}

// NewSSMLoader creates a new loader with default AWS config
func NewSSMLoader(ctx context.Context) (*SSMLoader, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSSMLoaderWithClient(ssm.NewFromConfig(cfg)), nil
}

func NewSSMLoaderWithClient(c SSMParameterStoreClient) *SSMLoader {
	return &SSMLoader{client: c}
}

// GetParameter retrieves a parameter from SSM
func (l *SSMLoader) GetParameter(ctx context.Context, paramName string, decrypt bool) (string, error) {
	logger.Infof("[SSMLoader] Retrieving parameter: %s", paramName)

	result, err := l.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(paramName),
		WithDecryption: aws.Bool(decrypt),
	})
	if err != nil {
		logger.Errorf("[SSMLoader] Failed to get parameter %s: %v", paramName, err)
		return "", fmt.Errorf("failed to get parameter: %w", err)
	}
	if result.Parameter == nil || result.Parameter.Value == nil {
		logger.Errorf("[SSMLoader] Parameter value is nil: %s", paramName)
		return "", fmt.Errorf("parameter value is nil")
	}

	logger.Infof("[SSMLoader] Retrieved parameter: %s", paramName)
	return *result.Parameter.Value, nil
}

// ResolveAWS applies the optional AWS-backed overrides to cfg. Loaders are only
// constructed when the corresponding name is configured.
func ResolveAWS(ctx context.Context, cfg *Config) error {
	if cfg.AWS.SecretName != "" {
		l, err := NewAWSSecretsLoader(ctx)
		if err != nil {
			return err
		}
		if err := ApplyUpstreamSecret(ctx, l, cfg.AWS.SecretName, &cfg.Upstream); err != nil {
			return err
		}
	}
	if cfg.AWS.AccountIDParam != "" {
		l, err := NewSSMLoader(ctx)
		if err != nil {
			return err
		}
		v, err := l.GetParameter(ctx, cfg.AWS.AccountIDParam, cfg.AWS.DecryptParams)
		if err != nil {
			return err
		}
		cfg.Upstream.AccountID = v
	}
	return nil
}
