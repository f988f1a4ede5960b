package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSRelay forwards checkout events to one SNS topic. The event type travels
// as a message attribute so subscriptions can filter on it.
type SNSRelay struct {
	client   snsAPI
	topicArn string
}

func NewSNSRelay(cfg sdkaws.Config, topicArn string) (*SNSRelay, error) {
	return newSNSRelay(sns.NewFromConfig(cfg), topicArn)
}

func newSNSRelay(client snsAPI, topicArn string) (*SNSRelay, error) {
	if topicArn == "" {
		return nil, fmt.Errorf("empty topicArn")
	}
	return &SNSRelay{client: client, topicArn: topicArn}, nil
}

func (s *SNSRelay) Name() string { return "sns" }

func (s *SNSRelay) Forward(ctx context.Context, eventType, key string, body []byte) error {
	input := &sns.PublishInput{
		TopicArn: sdkaws.String(s.topicArn),
		Message:  sdkaws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: sdkaws.String("String"), StringValue: sdkaws.String(eventType)},
			"key":        {DataType: sdkaws.String("String"), StringValue: sdkaws.String(key)},
		},
	}
	if _, err := s.client.Publish(ctx, input); err != nil {
		return fmt.Errorf("sns publish failed for topic %s: %w", s.topicArn, err)
	}
	return nil
}
