package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Message is a plain-text mail.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer sends run reports through Amazon SES.
type Mailer struct {
	client sesAPI
	from   string
}

// NewSESMailer creates a mailer using the default AWS configuration chain.
func NewSESMailer(ctx context.Context, from string) (*Mailer, error) {
	if from == "" {
		return nil, fmt.Errorf("mail sender is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return &Mailer{client: sesv2.NewFromConfig(cfg), from: from}, nil
}

// Send delivers m and returns the SES message id.
func (m *Mailer) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", fmt.Errorf("mail recipient is required")
	}

	out, err := m.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(m.from),
		Destination:      &sestypes.Destination{ToAddresses: []string{msg.To}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}

	return aws.ToString(out.MessageId), nil
}
