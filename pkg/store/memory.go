package store

import (
	"context"
	"sync"

	"github.com/catalog-ingest/ingest-service/pkg/record"
)

// MemoryStore is a RecordStore held in process memory. It applies the same
// conditions as DynamoStore and is used for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*record.Record{}}
}

func (s *MemoryStore) ConditionalUpsert(ctx context.Context, in UpsertInput) (record.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, found := s.records[in.ID]
	if found && r.Progress.Active() {
		return record.Record{}, false, nil
	}
	if !found {
		r = &record.Record{ID: in.ID}
		s.records[in.ID] = r
	}
	r.Version = in.Version
	r.Payload = in.Payload
	r.Progress = record.InProgress
	r.ModifiedBy = addToSet(r.ModifiedBy, in.Requester)

	return copyRecord(r), true, nil
}

func (s *MemoryStore) ConditionalAdvance(ctx context.Context, in AdvanceInput) (record.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, found := s.records[in.ID]
	if !found || r.Version != in.ExpectedVersion {
		return record.Record{}, false, nil
	}
	if in.RequireProgress != "" && r.Progress != in.RequireProgress {
		return record.Record{}, false, nil
	}
	r.Progress = in.Progress
	r.ModifiedBy = addToSet(r.ModifiedBy, in.Requester)

	return copyRecord(r), true, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (record.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return record.Record{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, found := s.records[id]
	if !found {
		return record.Record{}, false, nil
	}
	return copyRecord(r), true, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func addToSet(set []string, v string) []string {
	for _, s := range set {
		if s == v {
			return set
		}
	}
	return append(set, v)
}

func copyRecord(r *record.Record) record.Record {
	c := *r
	c.ModifiedBy = append([]string(nil), r.ModifiedBy...)
	return c
}
