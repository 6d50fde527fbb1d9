package rows

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/catalog-ingest/ingest-service/pkg/record"
)

// CSV reads rows from a CSV stream whose first line names the columns.
// Columns are matched to schema fields by name; unknown columns are ignored and
// fields without a column are left empty.
type CSV struct {
	reader  *csv.Reader
	schema  *record.Schema
	columns []int // schema field index per column, -1 when unknown
	err     error
}

func NewCSV(r io.Reader, schema *record.Schema) *CSV {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true
	return &CSV{reader: reader, schema: schema}
}

func (c *CSV) Next() (record.Row, error) {
	if c.err != nil {
		return record.Row{}, c.err
	}
	if c.columns == nil {
		if err := c.readHeader(); err != nil {
			c.err = err
			return record.Row{}, err
		}
	}

	fields, err := c.reader.Read()
	if err != nil {
		c.err = c.wrap(err)
		return record.Row{}, c.err
	}

	values := make([]string, len(c.schema.Fields))
	for i, v := range fields {
		if !utf8.ValidString(v) {
			line, column := c.reader.FieldPos(i)
			c.err = &ParseError{Position: line, Err: fmt.Errorf("column %d: %w", column, ErrInvalidUTF8)}
			return record.Row{}, c.err
		}
		if idx := c.columns[i]; idx >= 0 {
			values[idx] = strings.TrimSpace(v)
		}
	}
	row, err := c.schema.NewRow(values...)
	if err != nil {
		c.err = err
		return record.Row{}, err
	}
	return row, nil
}

func (c *CSV) readHeader() error {
	header, err := c.reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return c.wrap(err)
	}
	c.columns = make([]int, len(header))
	known := 0
	for i, name := range header {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		idx, ok := c.schema.Index(name)
		if !ok {
			idx = -1
		} else {
			known++
		}
		c.columns[i] = idx
	}
	if known == 0 {
		line, _ := c.reader.FieldPos(0)
		return &ParseError{Position: line, Err: fmt.Errorf("header has no %s columns", c.schema.Name)}
	}
	return nil
}

func (c *CSV) wrap(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	var csvErr *csv.ParseError
	if errors.As(err, &csvErr) {
		return &ParseError{Position: csvErr.Line, Err: csvErr.Err}
	}
	return err
}
