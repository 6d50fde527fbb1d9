// Package claim implements the claim/complete protocol that lets concurrent
// workers agree on which of them performs the work for a given row.
//
// A row's identity is the digest of its canonical form. TryClaim inserts or takes
// over the record for that identity with a fresh version token; only the worker
// holding the current token may Complete it. A record that is in progress or
// completed cannot be claimed again.
package claim

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/catalog-ingest/ingest-service/pkg/digest"
	"github.com/catalog-ingest/ingest-service/pkg/metrics"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/store"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type ClaimStatus int

const (
	// Claimed means the caller now holds the record and must perform the work.
	Claimed ClaimStatus = iota
	// AlreadyHandled means another worker holds or has finished the record.
	AlreadyHandled
)

func (s ClaimStatus) String() string {
	switch s {
	case Claimed:
		return "claimed"
	case AlreadyHandled:
		return "already_handled"
	}
	return "unknown"
}

type ClaimOutcome struct {
	Status ClaimStatus
	ID     string
	// Version is the fencing token, set only when Status is Claimed.
	Version string
}

type CompleteOutcome int

const (
	Completed CompleteOutcome = iota
	// LockLost means the record's version no longer matches the caller's token.
	LockLost
)

func (o CompleteOutcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case LockLost:
		return "lock_lost"
	}
	return "unknown"
}

type Protocol struct {
	store store.RecordStore
}

func NewProtocol(s store.RecordStore) *Protocol {
	return &Protocol{store: s}
}

// TryClaim attempts to take ownership of row. The returned error is reserved for
// store failures; losing the race is reported as AlreadyHandled.
func (p *Protocol) TryClaim(ctx context.Context, row record.Row) (ClaimOutcome, error) {
	id := digest.OfRow(row)
	version := uuid.NewString()

	r, accepted, err := p.store.ConditionalUpsert(ctx, store.UpsertInput{
		ID:        id,
		Version:   version,
		Payload:   row.String(),
		Requester: requester(ctx),
	})
	if err != nil {
		metrics.Claims.WithLabelValues("error").Inc()
		return ClaimOutcome{}, fmt.Errorf("claim %s: %w", id, err)
	}
	if !accepted {
		metrics.Claims.WithLabelValues(AlreadyHandled.String()).Inc()
		log.WithField("id", id).Info("record already exists, nothing to process")
		return ClaimOutcome{Status: AlreadyHandled, ID: id}, nil
	}

	metrics.Claims.WithLabelValues(Claimed.String()).Inc()
	log.WithFields(log.Fields{
		"id":          id,
		"version":     r.Version,
		"modified_by": r.ModifiedBy,
	}).Debug("claimed record")
	return ClaimOutcome{Status: Claimed, ID: id, Version: r.Version}, nil
}

// Complete marks the record finished if version is still its current token.
func (p *Protocol) Complete(ctx context.Context, id string, version string) (CompleteOutcome, error) {
	_, accepted, err := p.store.ConditionalAdvance(ctx, store.AdvanceInput{
		ID:              id,
		ExpectedVersion: version,
		Progress:        record.Completed,
		Requester:       requester(ctx),
	})
	if err != nil {
		metrics.Completions.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("complete %s: %w", id, err)
	}
	if !accepted {
		metrics.Completions.WithLabelValues(LockLost.String()).Inc()
		log.WithFields(log.Fields{"id": id, "version": version}).Warn("lost the lock before completion")
		return LockLost, nil
	}

	metrics.Completions.WithLabelValues(Completed.String()).Inc()
	return Completed, nil
}

// Release makes an in-progress record claimable again. It is an operator repair
// for records whose worker failed; it is never part of normal processing.
// Completed records cannot be released.
func (p *Protocol) Release(ctx context.Context, id string, version string) (bool, error) {
	_, accepted, err := p.store.ConditionalAdvance(ctx, store.AdvanceInput{
		ID:              id,
		ExpectedVersion: version,
		Progress:        record.Released,
		RequireProgress: record.InProgress,
		Requester:       requester(ctx),
	})
	if err != nil {
		return false, fmt.Errorf("release %s: %w", id, err)
	}
	log.WithFields(log.Fields{"id": id, "version": version, "released": accepted}).Info("release requested")
	return accepted, nil
}

// Status returns the stored record for id.
func (p *Protocol) Status(ctx context.Context, id string) (record.Record, bool, error) {
	return p.store.Get(ctx, id)
}

// requester identifies the caller in modified_by: the Lambda request id when
// running in Lambda, a fresh UUID otherwise.
func requester(ctx context.Context) string {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	return uuid.NewString()
}
