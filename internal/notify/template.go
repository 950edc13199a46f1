// Package notify builds the webhook body handed to the scheduling system and mails
// run reports.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/picklr-io/reportchain/internal/ir"
)

// QueryResultsMarker is replaced with the query result payload by the scheduling
// system when the automation fires.
const QueryResultsMarker = "{{QUERY_RESULTS}}"

// Email describes the report mail sent through the webhook.
type Email struct {
	Sender    string
	Recipient string
	Subject   string
}

type mailAddress struct {
	Email string `json:"email"`
}

type personalization struct {
	To []mailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// mailSend is the body of a SendGrid v3 mail/send request.
type mailSend struct {
	Personalizations []personalization `json:"personalizations"`
	From             mailAddress       `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

// BuildEmailTemplate renders the webhook body for e. The content value holds
// exactly one QueryResultsMarker.
func BuildEmailTemplate(e Email) (string, error) {
	if strings.TrimSpace(e.Sender) == "" {
		return "", fmt.Errorf("email sender is required")
	}
	if strings.TrimSpace(e.Recipient) == "" {
		return "", fmt.Errorf("email recipient is required")
	}
	if strings.Contains(e.Subject, QueryResultsMarker) {
		return "", fmt.Errorf("email subject must not contain %s", QueryResultsMarker)
	}

	body := mailSend{
		Personalizations: []personalization{{To: []mailAddress{{Email: e.Recipient}}}},
		From:             mailAddress{Email: e.Sender},
		Subject:          e.Subject,
		Content:          []mailContent{{Type: "text/plain", Value: QueryResultsMarker}},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(body); err != nil {
		return "", fmt.Errorf("failed to encode email template: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// PrepareCallback renders the webhook body from the email section when the
// configuration does not provide one.
func PrepareCallback(cfg *ir.Config) error {
	if cfg.Webhook == nil || cfg.Webhook.BodyTemplate != "" || cfg.Email == nil {
		return nil
	}
	body, err := BuildEmailTemplate(Email{
		Sender:    cfg.Email.Sender,
		Recipient: cfg.Email.Recipient,
		Subject:   cfg.Email.Subject,
	})
	if err != nil {
		return err
	}
	cfg.Webhook.BodyTemplate = body
	return nil
}
