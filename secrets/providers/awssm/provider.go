// Package awssm provides an AWS Secrets Manager backed secret provider.
//
// The provider implements the secrets.Provider interface for production
// pipelines where credentials (database connection strings, registry
// tokens, analysis-service tokens) live in AWS Secrets Manager. The AWS API
// surface is abstracted behind a small interface so unit tests can run
// without AWS access; integration against LocalStack works by overriding
// the endpoint.
package awssm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/input-output-hk/catalyst-forge-pipeline/secrets"
)

// API defines the AWS Secrets Manager operations the provider uses. It
// mirrors the AWS SDK v2 method signatures so *secretsmanager.Client
// satisfies it directly and tests can substitute fakes.
type API interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(
		ctx context.Context,
		params *secretsmanager.DescribeSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.DescribeSecretOutput, error)
}

// Config holds the provider configuration. Use the functional options
// rather than constructing Config directly.
type Config struct {
	// Region selects the AWS region. Empty defers to the SDK's default
	// resolution chain.
	Region string

	// Endpoint overrides the service endpoint (LocalStack testing).
	Endpoint string

	// MaxRetries bounds SDK-level retries for failed API calls.
	MaxRetries int
}

// Option configures the provider.
type Option func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(c *Config) { c.Region = region }
}

// WithEndpoint overrides the AWS endpoint. Useful for LocalStack.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithMaxRetries bounds SDK retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// Provider implements secrets.Provider over AWS Secrets Manager. It is safe
// for concurrent use.
type Provider struct {
	client API
	config *Config
}

// New creates a provider using the default AWS credential chain.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &Config{MaxRetries: 3}
	for _, opt := range opts {
		opt(cfg)
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Provider{client: client, config: cfg}, nil
}

// NewWithClient creates a provider with an injected API implementation.
// Used in tests.
func NewWithClient(client API) *Provider {
	return &Provider{client: client, config: &Config{}}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "awssm"
}

// HealthCheck verifies connectivity by describing a well-known nonexistent
// secret: a ResourceNotFound answer proves the service is reachable and
// credentials are accepted.
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String("forge-pipeline/healthcheck"),
	})
	if err == nil {
		return nil
	}
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return nil
	}
	return fmt.Errorf("secrets manager unreachable: %w", err)
}

// Close releases resources. The SDK client holds no closable state.
func (p *Provider) Close() error {
	return nil
}

// Resolve retrieves a single secret by reference. The ref path is the AWS
// secret name or ARN; a non-empty version is treated as a version stage
// (e.g., "AWSCURRENT") when it matches a known stage, otherwise a version
// ID.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: empty path", secrets.ErrInvalidRef)
	}

	input := &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref.Path),
	}
	if ref.Version != "" {
		if isVersionStage(ref.Version) {
			input.VersionStage = aws.String(ref.Version)
		} else {
			input.VersionId = aws.String(ref.Version)
		}
	}

	out, err := p.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, mapAWSError(ref, err)
	}

	var value []byte
	switch {
	case out.SecretString != nil:
		value = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		value = append([]byte(nil), out.SecretBinary...)
	default:
		return nil, fmt.Errorf("secret %s has no value: %w", ref.Path, secrets.ErrProviderError)
	}

	secret := &secrets.Secret{
		Value:     value,
		CreatedAt: time.Now(),
	}
	if out.VersionId != nil {
		secret.Version = *out.VersionId
	}
	if out.CreatedDate != nil {
		secret.CreatedAt = *out.CreatedDate
	}
	return secret, nil
}

// ResolveBatch retrieves multiple secrets sequentially, omitting missing
// ones. Secrets Manager has no native batch read; sequential requests keep
// error attribution simple for the handful of refs a stage carries.
func (p *Provider) ResolveBatch(ctx context.Context, refs []secrets.SecretRef) (map[string]*secrets.Secret, error) {
	results := make(map[string]*secrets.Secret)
	for _, ref := range refs {
		secret, err := p.Resolve(ctx, ref)
		if err != nil {
			if errors.Is(err, secrets.ErrSecretNotFound) {
				continue
			}
			return nil, err
		}
		results[ref.Path] = secret
	}
	return results, nil
}

// Exists checks if a secret exists without retrieving its value.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	_, err := p.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(ref.Path),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, mapAWSError(ref, err)
}

// isVersionStage reports whether v names an AWS version stage rather than a
// version ID. Stage labels are the two AWS-managed ones or anything that is
// clearly not a UUID-shaped version ID.
func isVersionStage(v string) bool {
	return v == "AWSCURRENT" || v == "AWSPREVIOUS" || v == "AWSPENDING"
}

func mapAWSError(ref secrets.SecretRef, err error) error {
	var nf *types.ResourceNotFoundException
	if errors.As(err, &nf) {
		return fmt.Errorf("%w: %s", secrets.ErrSecretNotFound, ref.Path)
	}
	return fmt.Errorf("get secret %s: %w", ref.Path, err)
}
