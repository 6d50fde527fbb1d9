package claim

import (
	"context"

	"github.com/catalog-ingest/ingest-service/pkg/executor"
	"github.com/catalog-ingest/ingest-service/pkg/incident"
	"github.com/catalog-ingest/ingest-service/pkg/metrics"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	log "github.com/sirupsen/logrus"
)

type Result int

const (
	ResultSkipped Result = iota
	ResultCompleted
	ResultLockLost
	ResultEffectFailed
)

func (r Result) String() string {
	switch r {
	case ResultSkipped:
		return "skipped"
	case ResultCompleted:
		return "completed"
	case ResultLockLost:
		return "lock_lost"
	case ResultEffectFailed:
		return "effect_failed"
	}
	return "unknown"
}

// Worker runs the claim, execute, complete sequence for single rows.
type Worker struct {
	protocol  *Protocol
	executor  executor.Executor
	incidents incident.Reporter
}

func NewWorker(protocol *Protocol, exec executor.Executor, incidents incident.Reporter) *Worker {
	return &Worker{protocol: protocol, executor: exec, incidents: incidents}
}

// Process handles one row. Lock losses and effect failures are reported to the
// incident channel and returned as results; the error is reserved for store and
// incident delivery failures, which the caller should redeliver.
//
// A failed effect leaves the record in progress so that no other worker repeats
// it until an operator releases it.
func (w *Worker) Process(ctx context.Context, row record.Row) (Result, error) {
	claimed, err := w.protocol.TryClaim(ctx, row)
	if err != nil {
		return ResultSkipped, err
	}
	if claimed.Status == AlreadyHandled {
		return ResultSkipped, nil
	}

	fields := log.Fields{"id": claimed.ID, "version": claimed.Version}

	if err := w.executor.Execute(ctx, row); err != nil {
		metrics.Effects.WithLabelValues("failed").Inc()
		log.WithFields(fields).WithError(err).Error("work effect failed, record left in progress")

		if err := w.incidents.Report(ctx, incident.New(incident.EffectFailed, claimed.ID, claimed.Version, err.Error())); err != nil {
			return ResultEffectFailed, err
		}
		return ResultEffectFailed, nil
	}
	metrics.Effects.WithLabelValues("ok").Inc()

	outcome, err := w.protocol.Complete(ctx, claimed.ID, claimed.Version)
	if err != nil {
		return ResultSkipped, err
	}
	if outcome == LockLost {
		reason := "record version changed before completion"
		if err := w.incidents.Report(ctx, incident.New(incident.LockLost, claimed.ID, claimed.Version, reason)); err != nil {
			return ResultLockLost, err
		}
		return ResultLockLost, nil
	}

	log.WithFields(fields).Info("record completed")
	return ResultCompleted, nil
}
