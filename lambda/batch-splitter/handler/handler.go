package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/catalog-ingest/ingest-service/pkg/dispatch"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	log "github.com/sirupsen/logrus"
)

// SNS accepts at most 10 entries per PublishBatch request.
const batchSize = 10

// maxRetries bounds the re-publishing of entries SNS reported as failed.
const maxRetries = 3

var maxRetryWaitMs = time.Minute.Milliseconds()

// SplitterHandler republishes every row of a batch message as its own message,
// keeping the batch's routing key.
type SplitterHandler struct {
	SNS       domain.SnsAPI
	TopicArn  string
	RowSchema string
}

// PublishFailedError lists the entries SNS did not accept.
type PublishFailedError struct {
	Failed []types.BatchResultErrorEntry
}

func (e *PublishFailedError) Error() string {
	first := e.Failed[0]
	return fmt.Sprintf("%d messages were not published, first: %s %s",
		len(e.Failed), aws.ToString(first.Code), aws.ToString(first.Message))
}

// Handle processes each SQS message on its own; failed messages are returned as
// batch item failures so that only they are redelivered. Rows of a redelivered
// message may be published twice, which the claim protocol absorbs.
func (h *SplitterHandler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse
	for _, message := range event.Records {
		logger := log.WithField("message_id", message.MessageId)
		published, err := h.split(ctx, message)
		if err != nil {
			logger.WithError(err).Error("unable to split batch message")
			response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: message.MessageId,
			})
			continue
		}
		logger.WithField("rows", published).Info("batch message split")
	}
	return response, nil
}

func (h *SplitterHandler) split(ctx context.Context, message events.SQSMessage) (int, error) {
	delivered := dispatch.FromSQS(message)

	schema, err := record.Resolve(h.RowSchema, delivered.RoutingKey)
	if err != nil {
		return 0, err
	}
	src, err := rows.NewMessage(delivered.Body, schema)
	if err != nil {
		return 0, err
	}

	attributes := dispatch.RoutingKeyAttributes(delivered.RoutingKey)
	published := 0
	var entries []types.PublishBatchRequestEntry
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return published, err
		}
		entries = append(entries, types.PublishBatchRequestEntry{
			Id:                aws.String(strconv.Itoa(len(entries))),
			Message:           aws.String(row.String()),
			MessageAttributes: attributes,
		})

		// Send SNS messages in blocks of batchSize
		if len(entries) == batchSize {
			if err := h.sendSNSMessages(ctx, entries); err != nil {
				return published, err
			}
			published += len(entries)
			entries = nil
		}
	}

	// send remaining entries
	if err := h.sendSNSMessages(ctx, entries); err != nil {
		return published, err
	}
	return published + len(entries), nil
}

func (h *SplitterHandler) sendSNSMessages(ctx context.Context, entries []types.PublishBatchRequestEntry) error {
	if len(entries) == 0 {
		return nil
	}
	log.Debug("Number of SNS messages: ", len(entries))

	retryCount := 0
	for {
		out, err := h.SNS.PublishBatch(ctx, &sns.PublishBatchInput{
			PublishBatchRequestEntries: entries,
			TopicArn:                   aws.String(h.TopicArn),
		})
		if err != nil {
			return fmt.Errorf("publish batch: %w", err)
		}
		if len(out.Failed) == 0 {
			return nil
		}
		if retryCount == maxRetries {
			return &PublishFailedError{Failed: out.Failed}
		}

		// Re-publish only the failed entries
		retryCount++
		entries = failedEntries(entries, out.Failed)
		log.WithFields(log.Fields{
			"failed": len(entries),
			"retry":  retryCount,
		}).Warn("SNS did not accept all entries")
		if err := exponentialWaitWithJitter(ctx, retryCount); err != nil {
			return fmt.Errorf("retry publish batch: %w", err)
		}
	}
}

func failedEntries(entries []types.PublishBatchRequestEntry, failed []types.BatchResultErrorEntry) []types.PublishBatchRequestEntry {
	ids := make(map[string]bool, len(failed))
	for _, f := range failed {
		ids[aws.ToString(f.Id)] = true
	}
	var retry []types.PublishBatchRequestEntry
	for _, e := range entries {
		if ids[aws.ToString(e.Id)] {
			retry = append(retry, e)
		}
	}
	return retry
}

func exponentialWaitWithJitter(ctx context.Context, retryCount int) error {
	waitMs := int64(100 * (1 << retryCount))
	if waitMs > maxRetryWaitMs {
		waitMs = maxRetryWaitMs
	}
	waitDuration := time.Duration(rand.Int63n(waitMs)) * time.Millisecond
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-time.After(waitDuration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
