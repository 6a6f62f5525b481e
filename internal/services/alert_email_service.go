package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// sesAPI is the part of the SES client the alert sink needs
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AlertEmailSink mails the security team when an account gets locked out or
// suspicious activity is detected. Other event kinds are ignored.
type AlertEmailSink struct {
	client     sesAPI
	sender     string
	recipients []string
	logger     *slog.Logger
}

// NewAlertEmailSink creates an SES-backed alert sink
func NewAlertEmailSink(ctx context.Context, region, sender string, recipients []string, logger *slog.Logger) (*AlertEmailSink, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newAlertEmailSink(ses.NewFromConfig(cfg), sender, recipients, logger), nil
}

func newAlertEmailSink(client sesAPI, sender string, recipients []string, logger *slog.Logger) *AlertEmailSink {
	return &AlertEmailSink{client: client, sender: sender, recipients: recipients, logger: logger}
}

func (s *AlertEmailSink) Name() string { return "ses-alerts" }

// Alerts reports whether kind triggers an email
func (s *AlertEmailSink) Alerts(kind models.SecurityEventKind) bool {
	return kind == models.EventLockoutTriggered || kind == models.EventSuspiciousActivity
}

func (s *AlertEmailSink) Publish(ctx context.Context, event *models.SecurityEvent) error {
	if !s.Alerts(event.Kind) || len(s.recipients) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[bastion] %s", strings.ReplaceAll(string(event.Kind), "_", " "))

	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: s.recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(alertBody(event))},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Info("security alert sent",
		slog.String("kind", string(event.Kind)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

func alertBody(event *models.SecurityEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Security event: %s\n", event.Kind)
	fmt.Fprintf(&b, "Time: %s\n", event.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Event ID: %s\n", event.ID)
	if event.IPAddress != "" {
		fmt.Fprintf(&b, "Source IP: %s\n", event.IPAddress)
	}
	if event.UserAgent != "" {
		fmt.Fprintf(&b, "User agent: %s\n", event.UserAgent)
	}
	if event.AdminID != "" {
		fmt.Fprintf(&b, "Admin ID: %s\n", event.AdminID)
	}

	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, event.Details[k])
	}

	b.WriteString("\nThis is an automated message from the bastion admin gateway.\n")
	return b.String()
}
