package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/reportchain/internal/ir"
)

// SecretScheme marks a value to be fetched from AWS Secrets Manager:
// secretsmanager://<secret-id>[#<json-key>].
const SecretScheme = "secretsmanager://"

type secretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver replaces secretsmanager:// references with secret values. The
// AWS client is created on first use, so plain values never touch AWS.
type SecretResolver struct {
	mu     sync.Mutex
	client secretsAPI
	cache  map[string]string
}

func NewSecretResolver() *SecretResolver {
	return &SecretResolver{cache: make(map[string]string)}
}

// Resolve returns value unchanged unless it is a secret reference.
func (r *SecretResolver) Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, SecretScheme) {
		return value, nil
	}
	ref := strings.TrimPrefix(value, SecretScheme)
	id, field, _ := strings.Cut(ref, "#")
	if id == "" {
		return "", fmt.Errorf("empty secret reference %q", value)
	}

	raw, err := r.fetch(ctx, id)
	if err != nil {
		return "", err
	}
	if field == "" {
		return raw, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return "", fmt.Errorf("secret %q is not a JSON object: %w", id, err)
	}
	v, ok := fields[field]
	if !ok {
		return "", fmt.Errorf("secret %q has no key %q", id, field)
	}
	return fmt.Sprint(v), nil
}

func (r *SecretResolver) fetch(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.cache[id]; ok {
		return v, nil
	}
	if r.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return "", fmt.Errorf("unable to load AWS config: %w", err)
		}
		r.client = secretsmanager.NewFromConfig(cfg)
	}

	out, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: aws.String(id)})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ResourceNotFoundException" {
			return "", fmt.Errorf("secret %q not found", id)
		}
		return "", fmt.Errorf("failed to read secret %q: %w", id, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %q has no string value", id)
	}

	r.cache[id] = *out.SecretString
	return *out.SecretString, nil
}

// Credentials are the control-plane connection settings.
type Credentials struct {
	Server string
	APIKey string
}

// LoadCredentials reads the API server and key from the environment, resolving
// secret references.
func LoadCredentials(ctx context.Context, r *SecretResolver) (*Credentials, error) {
	server, err := r.Resolve(ctx, strings.TrimSpace(os.Getenv(EnvAPIServer)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvAPIServer, err)
	}
	key, err := r.Resolve(ctx, strings.TrimSpace(os.Getenv(EnvAPIKey)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvAPIKey, err)
	}
	return &Credentials{Server: server, APIKey: key}, nil
}

// ResolveSecrets resolves secret references in the configuration in place. An
// empty webhook token is taken from REPORTCHAIN_WEBHOOK_TOKEN.
func ResolveSecrets(ctx context.Context, r *SecretResolver, cfg *ir.Config) error {
	w := cfg.Webhook
	if w == nil {
		return nil
	}
	if w.Token == "" {
		w.Token = os.Getenv(EnvWebhookToken)
	}
	token, err := r.Resolve(ctx, w.Token)
	if err != nil {
		return fmt.Errorf("webhook token: %w", err)
	}
	w.Token = token
	return nil
}
