package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/iliyamo/fitbook/internal/model"
)

// snsAPI is the subset of the SNS client the publisher uses.
type snsAPI interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher fans events out through an SNS topic. Subscribers filter on
// the event_type and recipient_id message attributes.
type SNSPublisher struct {
	client   snsAPI
	topicArn string
}

// NewSNSPublisher loads the default AWS configuration (environment,
// shared config, instance role) and returns a publisher for topicArn.
func NewSNSPublisher(ctx context.Context, topicArn string) (*SNSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SNSPublisher{client: sns.NewFromConfig(cfg), topicArn: topicArn}, nil
}

func (p *SNSPublisher) Notify(ctx context.Context, ev model.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	attrs := map[string]types.MessageAttributeValue{
		"event_type": {DataType: aws.String("String"), StringValue: aws.String(string(ev.Type))},
	}
	if ev.RecipientID != "" {
		attrs["recipient_id"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(ev.RecipientID)}
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicArn),
		Message:           aws.String(string(body)),
		Subject:           aws.String(string(ev.Type)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("sns publish %s: %w", ev.Type, err)
	}
	return nil
}
