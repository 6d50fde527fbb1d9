// Package store holds the keyed record store used to claim and complete rows.
//
// Both conditional writes are atomic per key. A write that does not satisfy
// its condition is reported as not accepted and leaves the record untouched;
// the error return is reserved for failures to reach the store.
package store

import (
	"context"

	"github.com/catalog-ingest/ingest-service/pkg/record"
)

// UpsertInput creates a record, or takes over one that is not active, and
// moves it to IN_PROGRESS.
type UpsertInput struct {
	ID        string
	Version   string
	Payload   string
	Requester string
}

// AdvanceInput sets the progress of a record whose stored version equals
// ExpectedVersion. When RequireProgress is set the stored progress must match
// it as well.
type AdvanceInput struct {
	ID              string
	ExpectedVersion string
	Progress        record.Progress
	RequireProgress record.Progress
	Requester       string
}

type RecordStore interface {
	// ConditionalUpsert succeeds when no record exists for the id or when the
	// existing record is neither IN_PROGRESS nor COMPLETED.
	ConditionalUpsert(ctx context.Context, in UpsertInput) (record.Record, bool, error)

	// ConditionalAdvance succeeds only when the stored version is unchanged.
	ConditionalAdvance(ctx context.Context, in AdvanceInput) (record.Record, bool, error)

	Get(ctx context.Context, id string) (record.Record, bool, error)
}
