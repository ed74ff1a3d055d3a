// internal/campaign/notify/sns.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	awsclients "campaign-client/internal/common/aws"
	"campaign-client/internal/common/logger"
	"campaign-client/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

const EventCampaignCompleted = "campaign.completed"

// CompletionPublisher announces finished campaigns to downstream consumers.
type CompletionPublisher interface {
	PublishCompletion(ctx context.Context, record models.CampaignRecord) error
}

type completionMessage struct {
	CampaignID  string          `json:"campaignId"`
	SessionID   string          `json:"sessionId"`
	Prompt      string          `json:"prompt"`
	Targets     []targetSummary `json:"targets"`
	CompletedAt string          `json:"completedAt"`
}

type targetSummary struct {
	Segment  string `json:"segment"`
	Accepted int    `json:"accepted"`
	Rejected int    `json:"rejected"`
}

type SNSPublisher struct {
	client   awsclients.SNSService
	topicARN string
	logger   logger.Logger
}

func NewSNSPublisher(client awsclients.SNSService, topicARN string, log logger.Logger) (*SNSPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("sns client is required")
	}
	if topicARN == "" {
		return nil, fmt.Errorf("topic_arn is required")
	}
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   logger.ForComponent(log, "sns-publisher"),
	}, nil
}

func (p *SNSPublisher) PublishCompletion(ctx context.Context, record models.CampaignRecord) error {
	msg := completionMessage{
		CampaignID:  record.ID,
		SessionID:   record.SessionID,
		Prompt:      record.Request.Prompt,
		Targets:     make([]targetSummary, 0, len(record.Request.TargetAudiences)),
		CompletedAt: record.CompletedAt.UTC().Format(time.RFC3339),
	}
	for _, segment := range record.Request.TargetAudiences {
		imgs := record.Results[segment]
		msg.Targets = append(msg.Targets, targetSummary{
			Segment:  segment,
			Accepted: len(imgs.Accepted),
			Rejected: len(imgs.Rejected),
		})
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String("Campaign completed"),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"eventType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(EventCampaignCompleted),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish completion: %w", err)
	}

	p.logger.Info("completion published", map[string]interface{}{
		"campaignId": record.ID,
		"messageId":  aws.ToString(out.MessageId),
	})
	return nil
}
