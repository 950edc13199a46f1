package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/reportchain/internal/engine"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPolling_Defaults(t *testing.T) {
	for _, v := range []string{EnvReadyMaxAttempts, EnvReadyInterval, EnvDeleteMaxAttempts, EnvDeleteInterval} {
		t.Setenv(v, "")
	}

	p := LoadPolling()
	assert.Equal(t, engine.DefaultReadyPolicy(), p.ReadyPolicy())
	assert.Equal(t, engine.DefaultDeletePolicy(), p.DeletePolicy())
}

func TestLoadPolling_Overrides(t *testing.T) {
	t.Setenv(EnvReadyMaxAttempts, "5")
	t.Setenv(EnvReadyInterval, "2s")
	t.Setenv(EnvDeleteMaxAttempts, "3")
	t.Setenv(EnvDeleteInterval, "500ms")

	p := LoadPolling()
	assert.Equal(t, engine.PollPolicy{MaxAttempts: 5, Interval: 2 * time.Second}, p.ReadyPolicy())
	assert.Equal(t, engine.PollPolicy{MaxAttempts: 3, Interval: 500 * time.Millisecond}, p.DeletePolicy())
}

func TestLoadPolling_InvalidValues(t *testing.T) {
	t.Setenv(EnvReadyMaxAttempts, "0")
	t.Setenv(EnvReadyInterval, "soon")
	t.Setenv(EnvDeleteMaxAttempts, "-2")
	t.Setenv(EnvDeleteInterval, "-1s")

	p := LoadPolling()
	assert.Equal(t, engine.DefaultReadyMaxAttempts, p.ReadyMaxAttempts)
	assert.Equal(t, engine.DefaultReadyInterval, p.ReadyInterval)
	assert.Equal(t, engine.DefaultDeleteMaxAttempts, p.DeleteMaxAttempts)
	assert.Equal(t, engine.DefaultDeleteInterval, p.DeleteInterval)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("REPORTCHAIN_TEST_FROM_FILE=file\nREPORTCHAIN_TEST_PRESET=file\n"), 0600))

	t.Setenv("REPORTCHAIN_TEST_PRESET", "env")
	t.Cleanup(func() { os.Unsetenv("REPORTCHAIN_TEST_FROM_FILE") })

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "file", os.Getenv("REPORTCHAIN_TEST_FROM_FILE"))
	assert.Equal(t, "env", os.Getenv("REPORTCHAIN_TEST_PRESET"))
}

type fakeSecrets struct {
	values map[string]string
	calls  int
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	v, ok := f.values[*in.SecretId]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "not found"}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: &v}, nil
}

func newTestResolver(values map[string]string) (*SecretResolver, *fakeSecrets) {
	f := &fakeSecrets{values: values}
	r := NewSecretResolver()
	r.client = f
	return r, f
}

func TestSecretResolver(t *testing.T) {
	r, f := newTestResolver(map[string]string{
		"reportchain/api":  "s3cr3t",
		"reportchain/json": `{"token":"Bearer abc","port":8443}`,
	})
	ctx := context.Background()

	v, err := r.Resolve(ctx, "plain-value")
	require.NoError(t, err)
	assert.Equal(t, "plain-value", v)
	assert.Zero(t, f.calls)

	v, err = r.Resolve(ctx, "secretsmanager://reportchain/api")
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", v)

	v, err = r.Resolve(ctx, "secretsmanager://reportchain/json#token")
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", v)

	v, err = r.Resolve(ctx, "secretsmanager://reportchain/json#port")
	require.NoError(t, err)
	assert.Equal(t, "8443", v)
	assert.Equal(t, 2, f.calls, "secrets are cached")

	_, err = r.Resolve(ctx, "secretsmanager://reportchain/json#missing")
	assert.ErrorContains(t, err, `no key "missing"`)

	_, err = r.Resolve(ctx, "secretsmanager://reportchain/api#token")
	assert.ErrorContains(t, err, "not a JSON object")

	_, err = r.Resolve(ctx, "secretsmanager://unknown")
	assert.EqualError(t, err, `secret "unknown" not found`)

	_, err = r.Resolve(ctx, "secretsmanager://")
	assert.Error(t, err)
}

func TestLoadCredentials(t *testing.T) {
	t.Setenv(EnvAPIServer, " https://api.example.com ")
	t.Setenv(EnvAPIKey, "secretsmanager://reportchain/api")
	r, _ := newTestResolver(map[string]string{"reportchain/api": "s3cr3t"})

	creds, err := LoadCredentials(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", creds.Server)
	assert.Equal(t, "s3cr3t", creds.APIKey)
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv(EnvWebhookToken, "secretsmanager://sendgrid#token")
	r, _ := newTestResolver(map[string]string{"sendgrid": `{"token":"Bearer sg"}`})

	cfg := &ir.Config{Webhook: &ir.WebhookConfig{URL: "https://api.sendgrid.com/v3/mail/send"}}
	require.NoError(t, ResolveSecrets(context.Background(), r, cfg))
	assert.Equal(t, "Bearer sg", cfg.Webhook.Token)

	require.NoError(t, ResolveSecrets(context.Background(), r, &ir.Config{}))
}
