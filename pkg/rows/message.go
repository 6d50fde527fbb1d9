package rows

import (
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/valyala/fastjson"
)

// Message reads rows from a batch message body, either {"rows":[...]} or a
// single row object. Field values must be strings or null.
type Message struct {
	schema *record.Schema
	items  []*fastjson.Value
	pos    int
	err    error
}

// NewMessage validates body and prepares its rows for decoding. Rows are
// decoded one at a time by Next.
func NewMessage(body string, schema *record.Schema) (*Message, error) {
	var p fastjson.Parser
	v, err := p.Parse(body)
	if err != nil {
		return nil, &ParseError{Position: 0, Err: fmt.Errorf("invalid message body: %w", err)}
	}
	if v.Type() != fastjson.TypeObject {
		return nil, &ParseError{Position: 0, Err: errors.New("message body is not an object")}
	}

	m := &Message{schema: schema}
	if rows := v.Get("rows"); rows != nil {
		items, err := rows.Array()
		if err != nil {
			return nil, &ParseError{Position: 0, Err: fmt.Errorf("rows: %w", err)}
		}
		m.items = items
	} else {
		m.items = []*fastjson.Value{v}
	}
	return m, nil
}

// Len is the number of rows in the message.
func (m *Message) Len() int {
	return len(m.items)
}

func (m *Message) Next() (record.Row, error) {
	if m.err != nil {
		return record.Row{}, m.err
	}
	if m.pos >= len(m.items) {
		return record.Row{}, io.EOF
	}
	position := m.pos
	m.pos++

	row, err := decodeRow(m.items[position], m.schema)
	if err != nil {
		m.err = &ParseError{Position: position, Err: err}
		return record.Row{}, m.err
	}
	return row, nil
}

func decodeRow(v *fastjson.Value, schema *record.Schema) (record.Row, error) {
	obj, err := v.Object()
	if err != nil {
		return record.Row{}, err
	}
	values := make(map[string]string, len(schema.Fields))
	obj.Visit(func(key []byte, field *fastjson.Value) {
		if err != nil {
			return
		}
		switch field.Type() {
		case fastjson.TypeString:
			v := field.GetStringBytes()
			if !utf8.Valid(v) {
				err = fmt.Errorf("field %s: %w", key, ErrInvalidUTF8)
				return
			}
			values[string(key)] = string(v)
		case fastjson.TypeNull:
		default:
			err = fmt.Errorf("field %s: expected string, got %s", key, field.Type())
		}
	})
	if err != nil {
		return record.Row{}, err
	}
	return schema.RowFromMap(values), nil
}
