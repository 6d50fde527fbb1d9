// Package incident delivers lock losses and effect failures to the operator channel.
package incident

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/catalog-ingest/ingest-service/pkg/domain"
	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	LockLost     Kind = "LOCK_LOST"
	EffectFailed Kind = "EFFECT_FAILED"
)

type Incident struct {
	Kind       Kind      `json:"kind"`
	ID         string    `json:"id"`
	Version    string    `json:"version"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(kind Kind, id, version, reason string) Incident {
	return Incident{
		Kind:       kind,
		ID:         id,
		Version:    version,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
}

type Reporter interface {
	Report(ctx context.Context, incident Incident) error
}

// SQS sends each incident as a JSON message to an operator queue.
type SQS struct {
	client   domain.SqsAPI
	queueURL string
}

func NewSQS(client domain.SqsAPI, queueURL string) *SQS {
	return &SQS{client: client, queueURL: queueURL}
}

func (s *SQS) Report(ctx context.Context, incident Incident) error {
	body, err := json.Marshal(incident)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(incident.Kind)),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("report %s incident for %s: %w", incident.Kind, incident.ID, err)
	}
	return nil
}

// Log writes incidents to the service log when no queue is configured.
type Log struct{}

func (Log) Report(ctx context.Context, incident Incident) error {
	log.WithFields(log.Fields{
		"kind":        incident.Kind,
		"id":          incident.ID,
		"version":     incident.Version,
		"occurred_at": incident.OccurredAt,
	}).Error(incident.Reason)
	return nil
}
