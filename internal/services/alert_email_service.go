package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	"github.com/BradenHooton/cardguard/internal/models"
)

// AWSSESAlertEmailer emails high-severity fraud alerts to an operations
// address using AWS SES. It implements AlertEmailer.
type AWSSESAlertEmailer struct {
	sesClient   *ses.Client
	fromAddress string
	toAddress   string
	logger      *slog.Logger
}

// NewAWSSESAlertEmailer creates a new AWS SES alert emailer
func NewAWSSESAlertEmailer(region, fromAddress, toAddress string, logger *slog.Logger) (*AWSSESAlertEmailer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertEmailer{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		toAddress:   toAddress,
		logger:      logger,
	}, nil
}

// SendAlertEmail sends one fraud alert to the operations address
func (s *AWSSESAlertEmailer) SendAlertEmail(ctx context.Context, alert models.FraudAlert) error {
	subject := fmt.Sprintf("[cardguard] %s severity fraud alert: %s", alert.Severity, alert.Type)

	textBody := fmt.Sprintf(`Fraud alert from cardguard

Type:      %s
Severity:  %s
IP:        %s
Merchant:  %s
GAN:       %s
Time:      %s

%s
`, alert.Type, alert.Severity, alert.IPAddress, alert.MerchantID, alert.GAN,
		alert.Timestamp.UTC().Format("2006-01-02T15:04:05Z07:00"), alert.Message)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.toAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	_, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Info("fraud alert email sent",
		slog.String("to", s.toAddress),
		slog.String("severity", alert.Severity))

	return nil
}
