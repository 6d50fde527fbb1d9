package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-lambda-go/events"
	"github.com/catalog-ingest/ingest-service/pkg/batch"
	"github.com/catalog-ingest/ingest-service/pkg/blob"
	"github.com/catalog-ingest/ingest-service/pkg/dispatch"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

const progressInterval = 1000

type ObjectOpener interface {
	Open(ctx context.Context, obj blob.Object) (io.ReadCloser, error)
}

// BatcherHandler streams an uploaded CSV file into size-bounded batch messages.
type BatcherHandler struct {
	Objects        ObjectOpener
	Dispatcher     dispatch.Dispatcher
	Workers        int
	MaxPayloadSize int
	// RowSchema overrides schema selection by object name when set.
	RowSchema string
}

// BatchFailedError reports an object that was not completely dispatched.
type BatchFailedError struct {
	Object   blob.Object
	Failures []*dispatch.Error
}

func (e *BatchFailedError) Error() string {
	return fmt.Sprintf("%d batches of %s could not be dispatched", len(e.Failures), e.Object)
}

func (h *BatcherHandler) Handle(ctx context.Context, event events.SNSEvent) error {
	var errs []error
	for _, r := range event.Records {
		delivered := dispatch.FromSNS(r)

		var obj blob.Object
		if err := json.Unmarshal([]byte(delivered.Body), &obj); err != nil {
			log.WithField("message", delivered.Body).WithError(err).Error("unable to decode change event")
			errs = append(errs, fmt.Errorf("decode change event: %w", err))
			continue
		}
		if err := h.processObject(ctx, obj); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *BatcherHandler) processObject(ctx context.Context, obj blob.Object) error {
	logger := log.WithField("object", obj.String())

	schema, err := record.Resolve(h.RowSchema, obj.Key)
	if err != nil {
		logger.WithError(err).Error("unable to select row schema")
		return err
	}

	body, err := h.Objects.Open(ctx, obj)
	if err != nil {
		logger.WithError(err).Error("unable to open object")
		return err
	}
	defer body.Close()

	src := &progressSource{src: rows.NewCSV(body, schema), logger: logger}
	assembler, err := batch.NewAssembler(src, h.MaxPayloadSize, obj.Key)
	if err != nil {
		return err
	}

	logger.WithField("schema", schema.Name).Info("dispatching rows")
	report, err := dispatch.NewPool(h.Dispatcher, h.Workers).Run(ctx, assembler)

	logger = logger.WithFields(log.Fields{
		"rows":       humanize.Comma(int64(report.Rows)),
		"batches":    report.Batches,
		"dispatched": report.Dispatched,
		"failed":     len(report.Failures),
	})
	if err != nil {
		logger.WithError(err).Error("row source failed, remaining rows were not dispatched")
		return fmt.Errorf("read %s: %w", obj, err)
	}
	if len(report.Failures) > 0 {
		logger.Error("some batches could not be dispatched")
		return &BatchFailedError{Object: obj, Failures: report.Failures}
	}
	logger.Info("all rows dispatched")
	return nil
}

// progressSource logs every progressInterval rows read from src.
type progressSource struct {
	src    rows.Source
	logger *log.Entry
	count  int64
}

func (p *progressSource) Next() (record.Row, error) {
	row, err := p.src.Next()
	if err != nil {
		return row, err
	}
	p.count++
	if p.count%progressInterval == 0 {
		p.logger.Infof("we have processed %s records", humanize.Comma(p.count))
	}
	return row, nil
}
