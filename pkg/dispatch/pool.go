package dispatch

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/catalog-ingest/ingest-service/pkg/batch"
	"github.com/catalog-ingest/ingest-service/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

// BatchSource yields batches until io.EOF. *batch.Assembler implements it.
type BatchSource interface {
	Next() (batch.Batch, error)
}

// Report summarizes one Run.
type Report struct {
	Batches    int
	Rows       int
	Dispatched int
	// Failures are ordered by batch sequence.
	Failures []*Error
}

// Pool dispatches batches from a single source with a fixed number of workers.
type Pool struct {
	dispatcher Dispatcher
	nrWorkers  int
}

func NewPool(dispatcher Dispatcher, nrWorkers int) *Pool {
	if nrWorkers < 1 {
		nrWorkers = 1
	}
	return &Pool{dispatcher: dispatcher, nrWorkers: nrWorkers}
}

type result struct {
	batch     batch.Batch
	messageId string
	err       error
}

// Run assembles and dispatches batches until the source is exhausted. A failed
// dispatch is recorded in the report and does not stop later batches. A source
// error stops assembly; batches already assembled are still dispatched and the
// source error is returned with the report.
func (p *Pool) Run(ctx context.Context, src BatchSource) (Report, error) {
	batches := make(chan batch.Batch, p.nrWorkers)
	results := make(chan result, p.nrWorkers)
	sourceErr := make(chan error, 1)

	go allocate(ctx, src, batches, sourceErr)

	var workerWg sync.WaitGroup
	for w := 1; w <= p.nrWorkers; w++ {
		workerWg.Add(1)
		go func() {
			defer workerWg.Done()
			p.worker(ctx, batches, results)
		}()
	}
	go func() {
		workerWg.Wait()
		close(results)
	}()

	var report Report
	for r := range results {
		report.Batches++
		report.Rows += len(r.batch.Rows)
		if r.err != nil {
			metrics.Dispatches.WithLabelValues("failed").Inc()
			report.Failures = append(report.Failures, &Error{
				Sequence:   r.batch.Sequence,
				RoutingKey: r.batch.RoutingKey,
				Rows:       len(r.batch.Rows),
				Err:        r.err,
			})
			continue
		}
		metrics.Dispatches.WithLabelValues("ok").Inc()
		report.Dispatched++
	}

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Sequence < report.Failures[j].Sequence
	})
	return report, <-sourceErr
}

// allocate pulls batches from src onto the channel for the workers to consume.
func allocate(ctx context.Context, src BatchSource, batches chan<- batch.Batch, sourceErr chan<- error) {
	defer close(batches)

	for {
		b, err := src.Next()
		if errors.Is(err, io.EOF) {
			sourceErr <- nil
			return
		}
		if err != nil {
			sourceErr <- err
			return
		}
		select {
		case batches <- b:
		case <-ctx.Done():
			sourceErr <- ctx.Err()
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, batches <-chan batch.Batch, results chan<- result) {
	for b := range batches {
		messageId, err := p.dispatcher.Dispatch(ctx, b)
		if err != nil {
			log.WithFields(log.Fields{
				"sequence":    b.Sequence,
				"routing_key": b.RoutingKey,
				"rows":        len(b.Rows),
			}).WithError(err).Error("failed to dispatch batch")
		} else {
			log.WithFields(log.Fields{
				"sequence":   b.Sequence,
				"message_id": messageId,
				"rows":       len(b.Rows),
				"size":       b.Size,
			}).Debug("dispatched batch")
		}
		results <- result{batch: b, messageId: messageId, err: err}
	}
}
