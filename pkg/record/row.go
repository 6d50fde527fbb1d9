package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

// Schema is the fixed, ordered list of fields for one kind of row. The field
// order determines the canonical form and therefore the digest of every row,
// so it must never be reordered once data has been stored.
type Schema struct {
	Name   string
	Fields []string
	index  map[string]int
}

// NewSchema returns a Schema with the given field order.
func NewSchema(name string, fields ...string) *Schema {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return &Schema{
		Name:   name,
		Fields: fields,
		index:  idx,
	}
}

// Index returns the position of field in the schema.
func (s *Schema) Index(field string) (int, bool) {
	i, ok := s.index[field]
	return i, ok
}

// NewRow creates a row from values given in schema order.
func (s *Schema) NewRow(values ...string) (Row, error) {
	if len(values) != len(s.Fields) {
		return Row{}, fmt.Errorf("schema %s expects %d values, got %d", s.Name, len(s.Fields), len(values))
	}
	v := make([]string, len(values))
	copy(v, values)
	return Row{schema: s, values: v}, nil
}

// RowFromMap creates a row from named values. Unknown names are ignored and
// missing fields are left empty.
func (s *Schema) RowFromMap(m map[string]string) Row {
	v := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		v[i] = m[f]
	}
	return Row{schema: s, values: v}
}

// Row is a single tabular record bound to its Schema.
type Row struct {
	schema *Schema
	values []string
}

func (r Row) Schema() *Schema {
	return r.schema
}

// Get returns the value of field, or "" when the schema has no such field.
func (r Row) Get(field string) string {
	if r.schema == nil {
		return ""
	}
	if i, ok := r.schema.index[field]; ok {
		return r.values[i]
	}
	return ""
}

// Values returns a copy of the row values in schema order.
func (r Row) Values() []string {
	v := make([]string, len(r.values))
	copy(v, r.values)
	return v
}

// Canonical returns the canonical serialized form of the row: a compact JSON
// object with keys in schema order and string values. HTML characters are not
// escaped.
func (r Row) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if r.schema != nil {
		for i, f := range r.schema.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(&buf, f)
			buf.WriteByte(':')
			writeString(&buf, r.values[i])
		}
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// Size is the length in bytes of the canonical form.
func (r Row) Size() int {
	return len(r.Canonical())
}

func (r Row) MarshalJSON() ([]byte, error) {
	return r.Canonical(), nil
}

func (r Row) String() string {
	return string(r.Canonical())
}

// writeString writes s as a JSON string. Line and paragraph separators are
// written raw, as the existing producers write them; encoding/json would escape
// them.
func writeString(buf *bytes.Buffer, s string) {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('"')
	for {
		i := strings.IndexAny(s, "\u2028\u2029")
		segment := s
		if i >= 0 {
			segment = s[:i]
		}

		// Encoding a string cannot fail. Encode adds quotes and a newline,
		// which are stripped again.
		start := buf.Len()
		_ = enc.Encode(segment)
		b := buf.Bytes()
		copy(b[start:], b[start+1:])
		buf.Truncate(buf.Len() - 3)

		if i < 0 {
			break
		}
		// Both separators are three bytes long.
		buf.WriteString(s[i : i+3])
		s = s[i+3:]
	}
	buf.WriteByte('"')
}

var SkuProduct = NewSchema("sku-product",
	"skuLong",
	"skuShort",
	"productID",
	"optionID",
	"subCategoryID",
	"subCategory",
	"departmentID",
	"department",
	"catalogID",
	"storeID",
	"store",
	"category",
	"categoryID",
	"color",
	"style",
	"imageURL",
	"productURL",
	"variantURL",
)

var BuyersPick = NewSchema("buyers-pick",
	"buyerID",
	"storeID",
	"skuLong",
	"productID",
	"quantity",
	"pickDate",
)

var schemas = map[string]*Schema{
	SkuProduct.Name: SkuProduct,
	BuyersPick.Name: BuyersPick,
}

// prefixes maps object name prefixes to schemas, checked in order.
var prefixes = []struct {
	prefix string
	schema *Schema
}{
	{"sku", SkuProduct},
	{"buyers", BuyersPick},
}

// Lookup returns the schema registered under name.
func Lookup(name string) (*Schema, bool) {
	s, ok := schemas[strings.ToLower(name)]
	return s, ok
}

// ForKey selects a schema from the base name of an object key or routing key,
// e.g. "incoming/sku-products-2020.csv" selects SkuProduct.
func ForKey(key string) (*Schema, bool) {
	base := strings.ToLower(path.Base(key))
	for _, p := range prefixes {
		if strings.HasPrefix(base, p.prefix) {
			return p.schema, true
		}
	}
	return nil, false
}

// Resolve returns the schema named by name when set, otherwise the schema
// matching key.
func Resolve(name string, key string) (*Schema, error) {
	if name != "" {
		s, ok := Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown row schema %q", name)
		}
		return s, nil
	}
	s, ok := ForKey(key)
	if !ok {
		return nil, fmt.Errorf("no row schema matches %q", key)
	}
	return s, nil
}
