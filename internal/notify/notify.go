// Package notify sends the best-effort side channel for workflow writes:
// email to the people named in a create request and a workflow event on the
// SNS topic.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"qms-workers/internal/common/config"
	"qms-workers/internal/common/errors"
	"qms-workers/internal/common/logger"
	"qms-workers/internal/common/metrics"
	"qms-workers/internal/models"
)

const (
	EventCreated = "created"
	EventUpdated = "updated"
)

const (
	channelEmail = "email"
	channelEvent = "event"
)

// SESService is the part of the SES client used here.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the part of the SNS client used here.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Event describes one completed workflow write.
type Event struct {
	Type       string            `json:"type"`
	Action     models.Action     `json:"action"`
	EntityType models.EntityType `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Status     string            `json:"status,omitempty"`
	Actor      string            `json:"actor"`
	Recipients []string          `json:"recipients,omitempty"`
	Summary    string            `json:"summary"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Notifier fans an Event out to the enabled channels.
type Notifier struct {
	ses       SESService
	sns       SNSService
	fromEmail string
	topicARN  string
	logger    logger.Logger
}

// New builds a Notifier. A nil client disables its channel, as does the
// matching enabled flag in cfg.
func New(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	n := &Notifier{
		fromEmail: cfg.SES.FromEmail,
		topicARN:  cfg.SNS.TopicARN,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
	}
	if cfg.SES.Enabled && cfg.SES.FromEmail != "" {
		n.ses = sesClient
	}
	if cfg.SNS.Enabled && cfg.SNS.TopicARN != "" {
		n.sns = snsClient
	}
	return n
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && (n.ses != nil || n.sns != nil)
}

// Notify delivers ev on every enabled channel. Email only goes out for
// created records that name recipients. All channels are attempted; the
// first failure is returned.
func (n *Notifier) Notify(ctx context.Context, ev Event) error {
	if !n.Enabled() {
		return nil
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	var firstErr error
	if n.ses != nil && ev.Type == EventCreated && len(ev.Recipients) > 0 {
		if err := n.sendEmail(ctx, ev); err != nil {
			firstErr = err
		}
	}
	if n.sns != nil {
		if err := n.publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *Notifier) sendEmail(ctx context.Context, ev Event) error {
	subject, body := renderEmail(ev)
	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: dedupe(ev.Recipients),
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.fromEmail),
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(channelEmail, "failed").Inc()
		n.logger.Warn("email notification failed", map[string]interface{}{
			"entityId": ev.EntityID,
			"error":    err,
		})
		return errors.NewNotificationSendFailedError(channelEmail, err)
	}
	metrics.NotificationsSent.WithLabelValues(channelEmail, "sent").Inc()
	return nil
}

func (n *Notifier) publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Message:  aws.String(string(payload)),
		Subject:  aws.String(subjectFor(ev)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"eventType": {DataType: aws.String("String"), StringValue: aws.String(ev.Type)},
			"entityType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(ev.EntityType)),
			},
		},
	})
	if err != nil {
		metrics.NotificationsSent.WithLabelValues(channelEvent, "failed").Inc()
		n.logger.Warn("event publish failed", map[string]interface{}{
			"entityId": ev.EntityID,
			"error":    err,
		})
		return errors.NewNotificationSendFailedError(channelEvent, err)
	}
	metrics.NotificationsSent.WithLabelValues(channelEvent, "sent").Inc()
	return nil
}

func subjectFor(ev Event) string {
	label := ev.EntityType.Label()
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	return fmt.Sprintf("%s %s %s", label, ev.EntityID, ev.Type)
}

func renderEmail(ev Event) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", ev.Summary)
	fmt.Fprintf(&b, "Record: %s\n", ev.EntityID)
	if ev.Status != "" {
		fmt.Fprintf(&b, "Status: %s\n", ev.Status)
	}
	fmt.Fprintf(&b, "Raised by: %s\n", ev.Actor)
	fmt.Fprintf(&b, "Time: %s\n", ev.OccurredAt.Format(time.RFC1123))
	return subjectFor(ev), b.String()
}

// dedupe drops repeated addresses, keeping first-seen order.
func dedupe(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		key := strings.ToLower(a)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}
