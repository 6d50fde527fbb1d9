package handler

import (
	"context"
	"errors"
	"io"

	"github.com/aws/aws-lambda-go/events"
	"github.com/catalog-ingest/ingest-service/pkg/claim"
	"github.com/catalog-ingest/ingest-service/pkg/dispatch"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	log "github.com/sirupsen/logrus"
)

// RowProcessor runs the claim, execute, complete sequence for one row.
type RowProcessor interface {
	Process(ctx context.Context, row record.Row) (claim.Result, error)
}

// CommandHandler drives every row of the received messages through the work
// effect exactly once.
type CommandHandler struct {
	Worker    RowProcessor
	RowSchema string
}

// Handle returns messages that hit a store or delivery failure as batch item
// failures so that SQS redelivers them. Rows already completed are skipped on
// redelivery. Effect failures and lost locks are reported as incidents and are
// not redelivered.
func (h *CommandHandler) Handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	var response events.SQSEventResponse
	for _, message := range event.Records {
		logger := log.WithField("message_id", message.MessageId)

		counts, err := h.processMessage(ctx, message)
		fields := log.Fields{}
		for result, n := range counts {
			fields[result.String()] = n
		}
		if err != nil {
			logger.WithFields(fields).WithError(err).Error("message will be redelivered")
			response.BatchItemFailures = append(response.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: message.MessageId,
			})
			continue
		}
		logger.WithFields(fields).Info("processing complete")
	}
	return response, nil
}

func (h *CommandHandler) processMessage(ctx context.Context, message events.SQSMessage) (map[claim.Result]int, error) {
	counts := map[claim.Result]int{}
	delivered := dispatch.FromSQS(message)

	schema, err := record.Resolve(h.RowSchema, delivered.RoutingKey)
	if err != nil {
		return counts, err
	}
	src, err := rows.NewMessage(delivered.Body, schema)
	if err != nil {
		return counts, err
	}

	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			return counts, nil
		}
		if err != nil {
			return counts, err
		}
		result, err := h.Worker.Process(ctx, row)
		if err != nil {
			return counts, err
		}
		counts[result]++
	}
}
