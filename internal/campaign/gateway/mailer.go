package gateway

import (
	"context"
	"fmt"
	"html"
	"strings"

	awsclients "campaign-client/internal/common/aws"
	httpclient "campaign-client/internal/common/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

const (
	OpFileProcess   = "file-process"
	OpLogoProcess   = "logo-process"
	OpGenerateEmail = "generate-email"
	OpSendMail      = "send-mail"
)

// Mailer dispatches a generated email.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
	Transport() string
}

// RESTMailer hands the email to the backend send-mail endpoint.
type RESTMailer struct {
	transport *restTransport
}

func (m *RESTMailer) Transport() string { return "rest" }

func (m *RESTMailer) Send(ctx context.Context, msg MailMessage) error {
	form := httpclient.NewForm().
		Field("subject", msg.Subject).
		Field("body", msg.Body).
		Field("image", msg.Image)
	return m.transport.post(ctx, OpSendMail, form, nil, nil)
}

// SESMailer sends the email directly through Amazon SES, embedding the image
// reference in the HTML part.
type SESMailer struct {
	client    awsclients.SESService
	fromEmail string
	to        []string
}

func NewSESMailer(client awsclients.SESService, fromEmail string, to []string) (*SESMailer, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	if fromEmail == "" {
		return nil, fmt.Errorf("from_email is required")
	}
	if len(to) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	return &SESMailer{client: client, fromEmail: fromEmail, to: append([]string(nil), to...)}, nil
}

func (m *SESMailer) Transport() string { return "ses" }

func (m *SESMailer) Send(ctx context.Context, msg MailMessage) error {
	_, err := m.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: m.to,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(textBody(msg))},
				Html: &types.Content{Data: aws.String(htmlBody(msg))},
			},
		},
		Source: aws.String(m.fromEmail),
	})
	return err
}

func textBody(msg MailMessage) string {
	if msg.Image == "" {
		return msg.Body
	}
	return msg.Body + "\n\n" + msg.Image
}

func htmlBody(msg MailMessage) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, para := range strings.Split(msg.Body, "\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(para))
		b.WriteString("</p>")
	}
	if msg.Image != "" {
		fmt.Fprintf(&b, `<img src="%s" alt="campaign image"/>`, html.EscapeString(msg.Image))
	}
	b.WriteString("</body></html>")
	return b.String()
}
