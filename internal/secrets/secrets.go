package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/pawel/toolgate/internal/config"
)

// ErrNotFound means the named secret has no value.
var ErrNotFound = errors.New("secrets: not found")

// Provider retrieves named secrets, read once at startup or per use.
type Provider interface {
	Get(ctx context.Context, name string) (string, error)
}

// New creates a Provider based on the configuration.
func New(cfg *config.SecretsConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "env":
		return Env{}, nil
	case "ssm":
		return NewSSM(cfg.Region)
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

// Env reads secrets from environment variables (godotenv has already
// loaded .env by the time config is up).
type Env struct{}

func (Env) Get(_ context.Context, name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return v, nil
}

// SSM reads secrets from the AWS SSM parameter store with decryption.
type SSM struct {
	client *ssm.Client
}

func NewSSM(region string) (*SSM, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SSM{client: ssm.NewFromConfig(awsCfg)}, nil
}

func (s *SSM) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("getting parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return aws.ToString(out.Parameter.Value), nil
}
