// Package executor runs the external work effect for a claimed row.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdaTypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	log "github.com/sirupsen/logrus"
)

// Executor performs the effect for one row. Any returned error is an *EffectError.
type Executor interface {
	Execute(ctx context.Context, row record.Row) error
}

// EffectError reports that the effect for a row failed or did not finish.
type EffectError struct {
	Effect string
	Err    error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("effect %s failed: %v", e.Effect, e.Err)
}

func (e *EffectError) Unwrap() error {
	return e.Err
}

// Lambda invokes a work function synchronously with the canonical row as payload.
type Lambda struct {
	client       domain.LambdaAPI
	functionName string
}

func NewLambda(client domain.LambdaAPI, functionName string) *Lambda {
	return &Lambda{client: client, functionName: functionName}
}

func (l *Lambda) Execute(ctx context.Context, row record.Row) error {
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.functionName),
		InvocationType: lambdaTypes.InvocationTypeRequestResponse,
		Payload:        row.Canonical(),
	})
	if err != nil {
		return &EffectError{Effect: l.functionName, Err: err}
	}
	if out.FunctionError != nil {
		return &EffectError{
			Effect: l.functionName,
			Err:    fmt.Errorf("%s: %s", aws.ToString(out.FunctionError), string(out.Payload)),
		}
	}

	log.WithFields(log.Fields{
		"function": l.functionName,
		"status":   out.StatusCode,
	}).Debug("work function returned")
	return nil
}

// Delay stands in for real work by waiting a fixed duration.
type Delay struct {
	Duration time.Duration
}

func (d Delay) Execute(ctx context.Context, row record.Row) error {
	timer := time.NewTimer(d.Duration)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return &EffectError{Effect: "delay", Err: ctx.Err()}
	}
}
