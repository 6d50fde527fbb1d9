// Package rows turns upstream payloads into a forward-only sequence of rows.
package rows

import (
	"errors"
	"fmt"
	"io"

	"github.com/catalog-ingest/ingest-service/pkg/record"
)

// Source yields rows one at a time and returns io.EOF when exhausted. A Source
// is finite and cannot be restarted; after any other error it keeps returning
// that error.
type Source interface {
	Next() (record.Row, error)
}

// ErrInvalidUTF8 is wrapped by a ParseError for a value that is not valid UTF-8.
// Such values would lose bytes in the canonical form and collide with other rows.
var ErrInvalidUTF8 = errors.New("value is not valid UTF-8")

// ParseError reports a malformed row. Position is the 1-based line of a CSV
// source or the 0-based element index of a message.
type ParseError struct {
	Position int
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse row at %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Slice is a Source over rows already in memory.
type Slice struct {
	rows []record.Row
	pos  int
}

func NewSlice(rows ...record.Row) *Slice {
	return &Slice{rows: rows}
}

func (s *Slice) Next() (record.Row, error) {
	if s.pos >= len(s.rows) {
		return record.Row{}, io.EOF
	}
	r := s.rows[s.pos]
	s.pos++
	return r, nil
}
