package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/picklr-io/reportchain/internal/ir"
	"github.com/picklr-io/reportchain/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEmailTemplate(t *testing.T) {
	body, err := BuildEmailTemplate(Email{
		Sender:    "reports@example.com",
		Recipient: "ops@example.com",
		Subject:   `Daily "cheap games" report`,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(body, QueryResultsMarker))

	var decoded mailSend
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "reports@example.com", decoded.From.Email)
	assert.Equal(t, "ops@example.com", decoded.Personalizations[0].To[0].Email)
	assert.Equal(t, `Daily "cheap games" report`, decoded.Subject)
	assert.Equal(t, QueryResultsMarker, decoded.Content[0].Value)
}

func TestBuildEmailTemplate_Escaping(t *testing.T) {
	body, err := BuildEmailTemplate(Email{
		Sender:    "a@example.com",
		Recipient: "b@example.com",
		Subject:   "line one\nline \"two\" <b>",
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "\n")
	assert.Contains(t, body, `line one\nline \"two\" <b>`)

	var decoded mailSend
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.Equal(t, "line one\nline \"two\" <b>", decoded.Subject)
}

func TestBuildEmailTemplate_Validation(t *testing.T) {
	_, err := BuildEmailTemplate(Email{Recipient: "b@example.com"})
	assert.EqualError(t, err, "email sender is required")

	_, err = BuildEmailTemplate(Email{Sender: "a@example.com", Recipient: " "})
	assert.EqualError(t, err, "email recipient is required")

	_, err = BuildEmailTemplate(Email{Sender: "a", Recipient: "b", Subject: QueryResultsMarker})
	assert.Error(t, err)
}

func TestPrepareCallback(t *testing.T) {
	cfg := &ir.Config{
		Email:   &ir.EmailConfig{Sender: "a@example.com", Recipient: "b@example.com", Subject: "report"},
		Webhook: &ir.WebhookConfig{URL: "https://api.sendgrid.com/v3/mail/send"},
	}
	require.NoError(t, PrepareCallback(cfg))
	assert.Contains(t, cfg.Webhook.BodyTemplate, QueryResultsMarker)

	cfg.Webhook.BodyTemplate = "custom"
	require.NoError(t, PrepareCallback(cfg))
	assert.Equal(t, "custom", cfg.Webhook.BodyTemplate)

	require.NoError(t, PrepareCallback(&ir.Config{}))
}

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestMailer_Send(t *testing.T) {
	var logs bytes.Buffer
	logging.Configure(logging.Options{Level: "debug", Output: &logs})
	defer logging.Init("info")

	ses := &fakeSES{}
	m := &Mailer{client: ses, from: "reportchain@example.com"}

	id, err := m.Send(context.Background(), Message{To: "ops@example.com", Subject: "provision", Text: "4 resources ready"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Empty(t, logs.String(), "callers log the delivery")

	require.Len(t, ses.inputs, 1)
	in := ses.inputs[0]
	assert.Equal(t, "reportchain@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ops@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "4 resources ready", aws.ToString(in.Content.Simple.Body.Text.Data))
}

func TestMailer_Errors(t *testing.T) {
	m := &Mailer{client: &fakeSES{err: errors.New("throttled")}, from: "a@example.com"}

	_, err := m.Send(context.Background(), Message{})
	assert.EqualError(t, err, "mail recipient is required")

	_, err = m.Send(context.Background(), Message{To: "b@example.com"})
	assert.ErrorContains(t, err, "throttled")
}
