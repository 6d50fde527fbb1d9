package claim

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/catalog-ingest/ingest-service/pkg/digest"
	"github.com/catalog-ingest/ingest-service/pkg/executor"
	"github.com/catalog-ingest/ingest-service/pkg/incident"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	mu        sync.Mutex
	incidents []incident.Incident
	err       error
}

func (r *recordingReporter) Report(ctx context.Context, i incident.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incidents = append(r.incidents, i)
	return r.err
}

type funcExecutor func(ctx context.Context, row record.Row) error

func (f funcExecutor) Execute(ctx context.Context, row record.Row) error {
	return f(ctx, row)
}

func TestWorkerProcess(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	reporter := &recordingReporter{}
	executions := 0
	w := NewWorker(NewProtocol(s), funcExecutor(func(ctx context.Context, row record.Row) error {
		executions++
		return nil
	}), reporter)

	result, err := w.Process(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, ResultCompleted, result)

	result, err = w.Process(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, result, "a redelivered row is not processed twice")

	assert.Equal(t, 1, executions)
	assert.Empty(t, reporter.incidents)
}

func TestWorkerEffectFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	reporter := &recordingReporter{}
	w := NewWorker(NewProtocol(s), funcExecutor(func(ctx context.Context, row record.Row) error {
		return &executor.EffectError{Effect: "work", Err: errors.New("timeout")}
	}), reporter)

	result, err := w.Process(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, ResultEffectFailed, result)

	require.Len(t, reporter.incidents, 1)
	assert.Equal(t, incident.EffectFailed, reporter.incidents[0].Kind)
	assert.Contains(t, reporter.incidents[0].Reason, "timeout")

	r, found, err := s.Get(ctx, reporter.incidents[0].ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record.InProgress, r.Progress, "failed work leaves the claim in place")

	result, err = w.Process(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, ResultSkipped, result)
}

func TestWorkerLockLost(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	reporter := &recordingReporter{}
	p := NewProtocol(s)

	// Another party releases and reclaims the record while the effect runs.
	w := NewWorker(p, funcExecutor(func(ctx context.Context, row record.Row) error {
		r, _, err := s.Get(ctx, digest.OfRow(row))
		require.NoError(t, err)
		released, err := p.Release(ctx, r.ID, r.Version)
		require.NoError(t, err)
		require.True(t, released)
		claimed, err := p.TryClaim(ctx, row)
		require.NoError(t, err)
		require.Equal(t, Claimed, claimed.Status)
		return nil
	}), reporter)

	result, err := w.Process(ctx, skuRow(t, "alpha"))
	require.NoError(t, err)
	assert.Equal(t, ResultLockLost, result)

	require.Len(t, reporter.incidents, 1)
	assert.Equal(t, incident.LockLost, reporter.incidents[0].Kind)
}

func TestWorkerIncidentDeliveryFailure(t *testing.T) {
	boom := errors.New("queue unavailable")
	reporter := &recordingReporter{err: boom}
	w := NewWorker(NewProtocol(store.NewMemoryStore()), funcExecutor(func(ctx context.Context, row record.Row) error {
		return &executor.EffectError{Effect: "work", Err: errors.New("timeout")}
	}), reporter)

	result, err := w.Process(context.Background(), skuRow(t, "alpha"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ResultEffectFailed, result)
}
