package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamoTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDynamoDB struct {
	updates  []*dynamodb.UpdateItemInput
	updateFn func(params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error)
	item     map[string]dynamoTypes.AttributeValue
}

func (f *fakeDynamoDB) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, params)
	return f.updateFn(params)
}

func (f *fakeDynamoDB) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func storedAttributes(progress record.Progress) map[string]dynamoTypes.AttributeValue {
	return map[string]dynamoTypes.AttributeValue{
		"id":          &dynamoTypes.AttributeValueMemberS{Value: "abc"},
		"json":        &dynamoTypes.AttributeValueMemberS{Value: `{"a":"1"}`},
		"version":     &dynamoTypes.AttributeValueMemberS{Value: "v1"},
		"progress":    &dynamoTypes.AttributeValueMemberS{Value: progress.String()},
		"modified_by": &dynamoTypes.AttributeValueMemberSS{Value: []string{"r1"}},
	}
}

func TestDynamoStoreUpsertRequest(t *testing.T) {
	db := &fakeDynamoDB{updateFn: func(params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return &dynamodb.UpdateItemOutput{Attributes: storedAttributes(record.InProgress)}, nil
	}}
	s := NewDynamoStore(db, "records")

	r, accepted, err := s.ConditionalUpsert(context.Background(), UpsertInput{
		ID: "abc", Version: "v1", Payload: `{"a":"1"}`, Requester: "r1",
	})
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, record.Record{
		ID: "abc", Payload: `{"a":"1"}`, Version: "v1", Progress: record.InProgress, ModifiedBy: []string{"r1"},
	}, r)

	require.Len(t, db.updates, 1)
	params := db.updates[0]
	assert.Equal(t, "records", aws.ToString(params.TableName))
	assert.Equal(t, upsertCondition, aws.ToString(params.ConditionExpression))
	assert.Equal(t, dynamoTypes.ReturnValueAllNew, params.ReturnValues)
	assert.Equal(t, &dynamoTypes.AttributeValueMemberSS{Value: []string{"r1"}}, params.ExpressionAttributeValues[":modified_by"])
}

func TestDynamoStoreAdvanceRequest(t *testing.T) {
	db := &fakeDynamoDB{updateFn: func(params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return &dynamodb.UpdateItemOutput{Attributes: storedAttributes(record.Released)}, nil
	}}
	s := NewDynamoStore(db, "records")

	_, accepted, err := s.ConditionalAdvance(context.Background(), AdvanceInput{
		ID: "abc", ExpectedVersion: "v1", Progress: record.Released, RequireProgress: record.InProgress, Requester: "op",
	})
	require.NoError(t, err)
	assert.True(t, accepted)

	params := db.updates[0]
	assert.Equal(t, "#version = :version AND #progress = :required_progress", aws.ToString(params.ConditionExpression))
	assert.Equal(t, &dynamoTypes.AttributeValueMemberS{Value: "IN_PROGRESS"}, params.ExpressionAttributeValues[":required_progress"])
}

func TestDynamoStoreConditionFailure(t *testing.T) {
	db := &fakeDynamoDB{updateFn: func(params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return nil, &dynamoTypes.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}}
	s := NewDynamoStore(db, "records")

	_, accepted, err := s.ConditionalAdvance(context.Background(), AdvanceInput{ID: "abc", ExpectedVersion: "stale", Progress: record.Completed})
	assert.NoError(t, err, "a failed condition is an outcome, not an error")
	assert.False(t, accepted)
}

func TestDynamoStoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	db := &fakeDynamoDB{updateFn: func(params *dynamodb.UpdateItemInput) (*dynamodb.UpdateItemOutput, error) {
		return nil, boom
	}}
	s := NewDynamoStore(db, "records")

	_, accepted, err := s.ConditionalUpsert(context.Background(), UpsertInput{ID: "abc"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, accepted)
}

func TestDynamoStoreGet(t *testing.T) {
	db := &fakeDynamoDB{item: storedAttributes(record.Completed)}
	s := NewDynamoStore(db, "records")

	r, found, err := s.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, record.Completed, r.Progress)

	db.item = nil
	_, found, err = s.Get(context.Background(), "abc")
	require.NoError(t, err)
	assert.False(t, found)
}
