package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/catalog-ingest/ingest-service/pkg/blob"
	"github.com/catalog-ingest/ingest-service/pkg/dispatch"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	log "github.com/sirupsen/logrus"
)

// RouterHandler forwards S3 change events to the topic, using the object key as
// routing key so the subscription filters can pick the right batcher.
type RouterHandler struct {
	SNS      domain.SnsAPI
	TopicArn string
}

func (h *RouterHandler) Handle(ctx context.Context, event events.S3Event) error {
	var errs []error
	for _, record := range event.Records {
		obj := toObject(record)
		logger := log.WithFields(log.Fields{
			"region": obj.Region,
			"bucket": obj.Bucket,
			"key":    obj.Key,
		})
		logger.Info("processing change event")

		messageId, err := h.publish(ctx, obj)
		if err != nil {
			logger.WithError(err).Error("unable to publish change event")
			errs = append(errs, err)
			continue
		}
		logger.WithField("message_id", messageId).Info("change event sent")
	}
	return errors.Join(errs...)
}

func (h *RouterHandler) publish(ctx context.Context, obj blob.Object) (string, error) {
	message, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	out, err := h.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(h.TopicArn),
		Message:           aws.String(string(message)),
		MessageAttributes: dispatch.RoutingKeyAttributes(obj.Key),
	})
	if err != nil {
		return "", fmt.Errorf("publish change event for %s: %w", obj, err)
	}
	return aws.ToString(out.MessageId), nil
}

// toObject reads the object location from an S3 event record. Keys in S3
// notifications are URL encoded.
func toObject(record events.S3EventRecord) blob.Object {
	key := record.S3.Object.URLDecodedKey
	if key == "" {
		key = record.S3.Object.Key
		if decoded, err := url.QueryUnescape(key); err == nil {
			key = decoded
		}
	}
	return blob.Object{
		Region: record.AWSRegion,
		Bucket: record.S3.Bucket.Name,
		Key:    key,
	}
}
