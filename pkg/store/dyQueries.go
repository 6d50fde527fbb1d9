package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamoTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	"github.com/catalog-ingest/ingest-service/pkg/record"
	log "github.com/sirupsen/logrus"
)

// NOTE: expression values have to be passed as placeholders; literals inside
// the IN list are not evaluated.
const (
	upsertExpression  = "SET #version = :version, #json = :json, #progress = :progress ADD #modified_by :modified_by"
	upsertCondition   = "attribute_not_exists(#id) OR (NOT #progress IN (:in_progress, :completed))"
	advanceExpression = "SET #progress = :progress ADD #modified_by :modified_by"
	advanceCondition  = "#version = :version"
)

var attributeNames = map[string]string{
	"#id":          "id",
	"#version":     "version",
	"#json":        "json",
	"#progress":    "progress",
	"#modified_by": "modified_by",
}

// DynamoDB rejects expression attribute names that the expressions do not use.
var advanceAttributeNames = map[string]string{
	"#version":     "version",
	"#progress":    "progress",
	"#modified_by": "modified_by",
}

// DynamoStore is the RecordStore backed by a DynamoDB table keyed on "id".
type DynamoStore struct {
	db        domain.DynamoDBAPI
	tableName string
}

// NewDynamoStore returns a DynamoStore for tableName.
func NewDynamoStore(db domain.DynamoDBAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		db:        db,
		tableName: tableName,
	}
}

func (s *DynamoStore) key(id string) map[string]dynamoTypes.AttributeValue {
	return map[string]dynamoTypes.AttributeValue{
		"id": &dynamoTypes.AttributeValueMemberS{Value: id},
	}
}

// ConditionalUpsert creates the record or takes over an inactive one, moving it
// to IN_PROGRESS with a new version.
func (s *DynamoStore) ConditionalUpsert(ctx context.Context, in UpsertInput) (record.Record, bool, error) {
	params := dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      s.key(in.ID),
		UpdateExpression:         aws.String(upsertExpression),
		ConditionExpression:      aws.String(upsertCondition),
		ExpressionAttributeNames: attributeNames,
		ExpressionAttributeValues: map[string]dynamoTypes.AttributeValue{
			":version":     &dynamoTypes.AttributeValueMemberS{Value: in.Version},
			":json":        &dynamoTypes.AttributeValueMemberS{Value: in.Payload},
			":progress":    &dynamoTypes.AttributeValueMemberS{Value: record.InProgress.String()},
			":in_progress": &dynamoTypes.AttributeValueMemberS{Value: record.InProgress.String()},
			":completed":   &dynamoTypes.AttributeValueMemberS{Value: record.Completed.String()},
			":modified_by": &dynamoTypes.AttributeValueMemberSS{Value: []string{in.Requester}},
		},
		ReturnValues: dynamoTypes.ReturnValueAllNew,
	}

	return s.update(ctx, &params)
}

// ConditionalAdvance sets the progress of a record if its version is unchanged.
func (s *DynamoStore) ConditionalAdvance(ctx context.Context, in AdvanceInput) (record.Record, bool, error) {
	condition := advanceCondition
	values := map[string]dynamoTypes.AttributeValue{
		":version":     &dynamoTypes.AttributeValueMemberS{Value: in.ExpectedVersion},
		":progress":    &dynamoTypes.AttributeValueMemberS{Value: in.Progress.String()},
		":modified_by": &dynamoTypes.AttributeValueMemberSS{Value: []string{in.Requester}},
	}
	if in.RequireProgress != "" {
		condition += " AND #progress = :required_progress"
		values[":required_progress"] = &dynamoTypes.AttributeValueMemberS{Value: in.RequireProgress.String()}
	}

	params := dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       s.key(in.ID),
		UpdateExpression:          aws.String(advanceExpression),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  advanceAttributeNames,
		ExpressionAttributeValues: values,
		ReturnValues:              dynamoTypes.ReturnValueAllNew,
	}

	return s.update(ctx, &params)
}

// Get returns the record stored under id using a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, id string) (record.Record, bool, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return record.Record{}, false, fmt.Errorf("get record %s: %w", id, err)
	}
	if len(out.Item) == 0 {
		return record.Record{}, false, nil
	}

	var r record.Record
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return record.Record{}, false, fmt.Errorf("unmarshal record %s: %w", id, err)
	}
	return r, true, nil
}

func (s *DynamoStore) update(ctx context.Context, params *dynamodb.UpdateItemInput) (record.Record, bool, error) {
	id := params.Key["id"].(*dynamoTypes.AttributeValueMemberS).Value

	out, err := s.db.UpdateItem(ctx, params)
	if err != nil {
		var ccf *dynamoTypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			log.WithFields(log.Fields{"id": id}).Debug("conditional check failed")
			return record.Record{}, false, nil
		}
		return record.Record{}, false, fmt.Errorf("update record %s: %w", id, err)
	}

	var r record.Record
	if err := attributevalue.UnmarshalMap(out.Attributes, &r); err != nil {
		return record.Record{}, false, fmt.Errorf("unmarshal record %s: %w", id, err)
	}
	return r, true, nil
}
