// Package sns delivers quota alerts to an Amazon SNS topic.
package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/artpar/quotamon/ports"
)

// API is the subset of the SNS client the notifier uses.
type API interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Notifier publishes notifications to an SNS topic. Each notification
// becomes one Publish call; SNS fans out to the topic's subscribers.
type Notifier struct {
	api      API
	topicARN string
}

// New creates a notifier from an AWS config and a default topic ARN.
func New(cfg aws.Config, topicARN string) *Notifier {
	return NewFromAPI(awssns.NewFromConfig(cfg), topicARN)
}

// NewFromAPI creates a notifier from an existing API implementation.
func NewFromAPI(api API, topicARN string) *Notifier {
	return &Notifier{api: api, topicARN: topicARN}
}

// Send publishes the notification. A non-empty Target overrides the
// default topic ARN, so callers can route alerts per severity.
func (n *Notifier) Send(ctx context.Context, msg ports.Notification) error {
	arn := n.topicARN
	if msg.Target != "" {
		arn = msg.Target
	}
	if arn == "" {
		return fmt.Errorf("sns: no topic configured")
	}

	in := &awssns.PublishInput{
		TopicArn: aws.String(arn),
		Subject:  aws.String(msg.Subject),
		Message:  aws.String(msg.Body),
	}
	if msg.ID != "" {
		in.MessageAttributes = map[string]snstypes.MessageAttributeValue{
			"notification_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.ID),
			},
		}
	}

	if _, err := n.api.Publish(ctx, in); err != nil {
		return fmt.Errorf("publish to %s: %w", arn, err)
	}
	return nil
}

var _ ports.Notifier = (*Notifier)(nil)
