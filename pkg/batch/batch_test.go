package batch

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/pkg/rows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var padSchema = record.NewSchema("pad", "v")

// sized returns a row whose canonical form is exactly n bytes.
func sized(t *testing.T, n int) record.Row {
	overhead := len(`{"v":""}`)
	require.GreaterOrEqual(t, n, overhead)
	row, err := padSchema.NewRow(strings.Repeat("x", n-overhead))
	require.NoError(t, err)
	require.Equal(t, n, row.Size())
	return row
}

func sizes(t *testing.T, ns ...int) []record.Row {
	out := make([]record.Row, len(ns))
	for i, n := range ns {
		out[i] = sized(t, n)
	}
	return out
}

func collect(t *testing.T, a *Assembler) ([]Batch, error) {
	var out []Batch
	for {
		b, err := a.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
}

func batchSizes(batches []Batch) [][]int {
	var out [][]int
	for _, b := range batches {
		var s []int
		for _, r := range b.Rows {
			s = append(s, r.Size())
		}
		out = append(out, s)
	}
	return out
}

func TestAssembler(t *testing.T) {
	for scenario, fn := range map[string]func(tt *testing.T){
		"greedy packing walk":                 testGreedyWalk,
		"batches never exceed the limit":      testSizeBound,
		"rows keep order and none are lost":   testOrderAndCompleteness,
		"empty source yields no batches":      testEmptySource,
		"oversized row is emitted alone":      testOversizedRow,
		"source failure flushes pending rows": testSourceFailure,
		"non positive limit is rejected":      testInvalidLimit,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t)
		})
	}
}

func testGreedyWalk(t *testing.T) {
	a, err := NewAssembler(rows.NewSlice(sizes(t, 100, 150, 50, 300)...), 250, "incoming/sku.csv")
	require.NoError(t, err)

	batches, err := collect(t, a)
	require.NoError(t, err)

	assert.Equal(t, [][]int{{100, 150}, {50}, {300}}, batchSizes(batches))
	for i, b := range batches {
		assert.Equal(t, i, b.Sequence)
		assert.Equal(t, "incoming/sku.csv", b.RoutingKey)
	}
	assert.Equal(t, 250, batches[0].Size)
}

func testSizeBound(t *testing.T) {
	var ns []int
	for i := 0; i < 200; i++ {
		ns = append(ns, 10+(i*37)%90)
	}
	a, err := NewAssembler(rows.NewSlice(sizes(t, ns...)...), 300, "")
	require.NoError(t, err)

	batches, err := collect(t, a)
	require.NoError(t, err)
	for _, b := range batches {
		assert.NotEmpty(t, b.Rows)
		assert.LessOrEqual(t, b.Size, 300)
	}
}

func testOrderAndCompleteness(t *testing.T) {
	var in []record.Row
	for i := 0; i < 50; i++ {
		row, err := record.BuyersPick.NewRow("b", "s", strings.Repeat("k", i%7), "p", "1", "d")
		require.NoError(t, err)
		in = append(in, row)
	}
	a, err := NewAssembler(rows.NewSlice(in...), 400, "")
	require.NoError(t, err)

	batches, err := collect(t, a)
	require.NoError(t, err)

	var out []record.Row
	for _, b := range batches {
		out = append(out, b.Rows...)
	}
	assert.Equal(t, in, out)
}

func testEmptySource(t *testing.T) {
	a, err := NewAssembler(rows.NewSlice(), 250, "")
	require.NoError(t, err)

	batches, err := collect(t, a)
	require.NoError(t, err)
	assert.Empty(t, batches)
}

func testOversizedRow(t *testing.T) {
	a, err := NewAssembler(rows.NewSlice(sizes(t, 50, 400, 60, 70)...), 250, "")
	require.NoError(t, err)

	batches, err := collect(t, a)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{50}, {400}, {60, 70}}, batchSizes(batches))
}

func testSourceFailure(t *testing.T) {
	input := "skuLong,productID\n" +
		"SKU-1,p1\n" +
		"SKU-2,p2\n" +
		"SKU-3,p3,unexpected\n" +
		"SKU-4,p4\n"
	a, err := NewAssembler(rows.NewCSV(strings.NewReader(input), record.BuyersPick), 10_000, "")
	require.NoError(t, err)

	first, err := a.Next()
	require.NoError(t, err)
	assert.Len(t, first.Rows, 2, "rows read before the failure are kept")

	_, err = a.Next()
	var parseErr *rows.ParseError
	require.ErrorAs(t, err, &parseErr)

	_, again := a.Next()
	assert.Equal(t, err, again)
}

func testInvalidLimit(t *testing.T) {
	_, err := NewAssembler(rows.NewSlice(), 0, "")
	assert.Error(t, err)
}

func TestBody(t *testing.T) {
	a, err := NewAssembler(rows.NewSlice(sizes(t, 20, 30)...), 250, "")
	require.NoError(t, err)
	b, err := a.Next()
	require.NoError(t, err)

	var decoded struct {
		Rows []map[string]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(b.Body(), &decoded))
	assert.Len(t, decoded.Rows, 2)
	assert.Equal(t, b.Size+len(`{"rows":[,]}`), len(b.Body()))
}
