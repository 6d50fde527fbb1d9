package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/catalog-ingest/ingest-service/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pickRow(t *testing.T) record.Row {
	row, err := record.BuyersPick.NewRow("b1", "s1", "SKU-1", "p1", "2", "2024-01-02")
	require.NoError(t, err)
	return row
}

func TestLambda(t *testing.T) {
	for scenario, fn := range map[string]func(tt *testing.T){
		"invokes synchronously with the canonical row": testLambdaInvoke,
		"function errors are effect errors":            testLambdaFunctionError,
		"transport errors are effect errors":           testLambdaTransportError,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t)
		})
	}
}

func testLambdaInvoke(t *testing.T) {
	client := &test.MockLambda{Payload: []byte(`{"ok":true}`)}
	row := pickRow(t)

	err := NewLambda(client, "work").Execute(context.Background(), row)
	require.NoError(t, err)

	require.Len(t, client.Invocations, 1)
	in := client.Invocations[0]
	assert.Equal(t, "work", aws.ToString(in.FunctionName))
	assert.Equal(t, lambdaTypes.InvocationTypeRequestResponse, in.InvocationType)
	assert.Equal(t, row.Canonical(), in.Payload)
}

func testLambdaFunctionError(t *testing.T) {
	client := &test.MockLambda{FunctionError: "Unhandled", Payload: []byte(`{"errorMessage":"bad row"}`)}

	err := NewLambda(client, "work").Execute(context.Background(), pickRow(t))

	var effectErr *EffectError
	require.ErrorAs(t, err, &effectErr)
	assert.Equal(t, "work", effectErr.Effect)
	assert.Contains(t, err.Error(), "bad row")
}

func testLambdaTransportError(t *testing.T) {
	boom := errors.New("throttled")
	client := &test.MockLambda{Err: boom}

	err := NewLambda(client, "work").Execute(context.Background(), pickRow(t))

	var effectErr *EffectError
	assert.ErrorAs(t, err, &effectErr)
	assert.ErrorIs(t, err, boom)
}

func TestDelay(t *testing.T) {
	assert.NoError(t, Delay{Duration: time.Millisecond}.Execute(context.Background(), pickRow(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Delay{Duration: time.Hour}.Execute(ctx, pickRow(t))
	var effectErr *EffectError
	require.ErrorAs(t, err, &effectErr)
	assert.ErrorIs(t, err, context.Canceled)
}
