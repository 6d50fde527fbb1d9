// Package dispatch publishes assembled batches to the notification topic.
package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snsTypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/catalog-ingest/ingest-service/pkg/batch"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	"golang.org/x/time/rate"
)

// RoutingKeyAttribute is the message attribute carrying a batch's routing key.
const RoutingKeyAttribute = "routing-key"

// Dispatcher delivers one batch and returns the message id assigned to it.
type Dispatcher interface {
	Dispatch(ctx context.Context, b batch.Batch) (string, error)
}

// Error records a batch that could not be delivered.
type Error struct {
	Sequence   int
	RoutingKey string
	Rows       int
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("dispatch batch %d (%d rows, routing key %q): %v", e.Sequence, e.Rows, e.RoutingKey, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RoutingKeyAttributes returns the SNS message attributes for routingKey. An
// empty key yields no attributes since SNS rejects empty string values.
func RoutingKeyAttributes(routingKey string) map[string]snsTypes.MessageAttributeValue {
	if routingKey == "" {
		return nil
	}
	return map[string]snsTypes.MessageAttributeValue{
		RoutingKeyAttribute: {
			DataType:    aws.String("String"),
			StringValue: aws.String(routingKey),
		},
	}
}

// Publisher publishes each batch as one SNS message.
type Publisher struct {
	client   domain.SnsAPI
	topicArn string
	limiter  *rate.Limiter
}

// NewPublisher returns a Publisher for topicArn. A positive perSecond limits the
// publish rate; zero disables limiting.
func NewPublisher(client domain.SnsAPI, topicArn string, perSecond float64) *Publisher {
	p := &Publisher{client: client, topicArn: topicArn}
	if perSecond > 0 {
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
	return p
}

func (p *Publisher) Dispatch(ctx context.Context, b batch.Batch) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicArn),
		Message:           aws.String(string(b.Body())),
		MessageAttributes: RoutingKeyAttributes(b.RoutingKey),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
