// Package batch packs a row stream into size-bounded batches for publishing.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/catalog-ingest/ingest-service/pkg/metrics"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
)

// DefaultMaxPayloadSize keeps a batch message below the 262144 byte SNS limit
// once the rows are wrapped and separated.
const DefaultMaxPayloadSize = 256_000

// Batch is a run of consecutive rows from one source.
type Batch struct {
	Sequence   int
	RoutingKey string
	Rows       []record.Row
	// Size is the sum of the canonical sizes of Rows.
	Size int
}

// Body returns the message body {"rows":[...]} carrying the canonical rows.
func (b Batch) Body() []byte {
	var buf bytes.Buffer
	buf.Grow(b.Size + len(b.Rows) + len(`{"rows":[]}`))
	buf.WriteString(`{"rows":[`)
	for i, r := range b.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(r.Canonical())
	}
	buf.WriteString(`]}`)
	return buf.Bytes()
}

// Assembler greedily groups rows so that no batch exceeds maxPayloadSize,
// unless a single row is larger than the limit, in which case that row is
// emitted on its own. Rows keep their source order and are read at most once.
type Assembler struct {
	src        rows.Source
	max        int
	routingKey string

	pending     []record.Row
	pendingSize int
	sequence    int
	err         error
}

func NewAssembler(src rows.Source, maxPayloadSize int, routingKey string) (*Assembler, error) {
	if maxPayloadSize <= 0 {
		return nil, fmt.Errorf("max payload size must be positive, got %d", maxPayloadSize)
	}
	return &Assembler{src: src, max: maxPayloadSize, routingKey: routingKey}, nil
}

// Next returns the next batch, or io.EOF when the source is exhausted. When the
// source fails, rows read before the failure are returned as a final batch and
// the source error is returned by the following call.
func (a *Assembler) Next() (Batch, error) {
	if a.err != nil {
		return Batch{}, a.err
	}

	for {
		row, err := a.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				a.err = io.EOF
			} else {
				a.err = err
			}
			if len(a.pending) > 0 {
				return a.emit(nil), nil
			}
			return Batch{}, a.err
		}

		size := row.Size()
		if len(a.pending) > 0 && a.pendingSize+size > a.max {
			return a.emit(&row), nil
		}
		a.pending = append(a.pending, row)
		a.pendingSize += size
	}
}

// emit returns the pending rows as a batch and starts the next batch with next.
func (a *Assembler) emit(next *record.Row) Batch {
	b := Batch{
		Sequence:   a.sequence,
		RoutingKey: a.routingKey,
		Rows:       a.pending,
		Size:       a.pendingSize,
	}
	a.sequence++
	metrics.BatchRows.Observe(float64(len(b.Rows)))

	a.pending = nil
	a.pendingSize = 0
	if next != nil {
		a.pending = []record.Row{*next}
		a.pendingSize = next.Size()
	}
	return b
}
