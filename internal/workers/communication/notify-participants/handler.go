// internal/workers/communication/notify-participants/handler.go
package notifyparticipants

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
)

const (
	TaskType = "notify-participants"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Handler fans one lifecycle notification out to every accepted participant.
// Individual send failures are counted, not fatal: one bad address must not
// keep the rest of the group uninformed.
type Handler struct {
	config    *Config
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewHandler(config *Config, log logger.Logger) (*Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(config.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &Handler{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

// NewHandlerWithClients injects the messaging clients, for tests.
func NewHandlerWithClients(config *Config, sesClient SESService, snsClient SNSService, log logger.Logger) *Handler {
	return &Handler{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"taskType": TaskType}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	subject, body, err := renderMessage(input)
	if err != nil {
		return nil, err
	}

	output := &Output{
		NotificationID: uuid.New().String(),
		SentAt:         time.Now().UTC().Format(time.RFC3339),
	}

	if !h.config.EmailEnabled && !h.config.SMSEnabled {
		output.Status = StatusDisabled
		return output, nil
	}

	for _, recipient := range input.Recipients {
		if !recipient.Accepted {
			continue
		}

		delivered := false
		if h.config.EmailEnabled && recipient.Email != "" {
			if err := h.sendEmail(ctx, recipient.Email, subject, body); err != nil {
				h.logger.Error("email send failed", map[string]interface{}{
					"eventId":       input.EventID,
					"participantId": recipient.ID,
					"error":         err.Error(),
				})
			} else {
				output.EmailsSent++
				delivered = true
			}
		}
		if h.config.SMSEnabled && recipient.Phone != "" {
			if err := h.sendSMS(ctx, recipient.Phone, body); err != nil {
				h.logger.Error("SMS send failed", map[string]interface{}{
					"eventId":       input.EventID,
					"participantId": recipient.ID,
					"error":         err.Error(),
				})
			} else {
				output.SMSSent++
				delivered = true
			}
		}
		if !delivered {
			output.Failures++
		}
	}

	switch {
	case output.EmailsSent+output.SMSSent == 0 && output.Failures > 0:
		output.Status = StatusFailed
	case output.Failures > 0:
		output.Status = StatusPartial
	default:
		output.Status = StatusSent
	}

	h.logger.Info("participants notified", map[string]interface{}{
		"eventId":    input.EventID,
		"kind":       input.Kind,
		"emailsSent": output.EmailsSent,
		"smsSent":    output.SMSSent,
		"failures":   output.Failures,
	})

	return output, nil
}

func renderMessage(input *Input) (string, string, error) {
	switch input.Kind {
	case KindVotingOpened:
		return fmt.Sprintf("Vote on a venue for %s", input.EventTitle),
			fmt.Sprintf("The shortlist for %s is ready. Cast your vote before the deadline.", input.EventTitle),
			nil
	case KindVenueConfirmed:
		return fmt.Sprintf("Venue confirmed for %s", input.EventTitle),
			fmt.Sprintf("%s is confirmed for %s. See you there!", input.VenueName, input.EventTitle),
			nil
	case KindRunFailed:
		return fmt.Sprintf("Action needed for %s", input.EventTitle),
			"Could not generate recommendations, please retry",
			nil
	case KindEventCancelled:
		return fmt.Sprintf("%s has been cancelled", input.EventTitle),
			fmt.Sprintf("The organizer cancelled %s.", input.EventTitle),
			nil
	default:
		return "", "", apperrors.NewInvalidPayloadError("", "unknown notification kind: "+input.Kind)
	}
}

func (h *Handler) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := h.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(h.config.FromEmail),
	})
	return err
}

func (h *Handler) sendSMS(ctx context.Context, to, message string) error {
	_, err := h.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}
