package test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go/middleware"
)

// MockSNS records every publish. Publish fails for inputs matched by FailPublish and
// PublishBatch reports entries matched by FailEntry as failed.
type MockSNS struct {
	mu          sync.Mutex
	Published   []*sns.PublishInput
	Batches     []*sns.PublishBatchInput
	FailPublish func(params *sns.PublishInput) error
	FailEntry   func(entry snstypes.PublishBatchRequestEntry) bool
}

func (s *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPublish != nil {
		if err := s.FailPublish(params); err != nil {
			return nil, err
		}
	}
	s.Published = append(s.Published, params)
	return &sns.PublishOutput{
		MessageId:      aws.String(fmt.Sprintf("msg-%d", len(s.Published))),
		ResultMetadata: middleware.Metadata{},
	}, nil
}

func (s *MockSNS) PublishBatch(ctx context.Context, params *sns.PublishBatchInput, optFns ...func(*sns.Options)) (*sns.PublishBatchOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Batches = append(s.Batches, params)

	result := sns.PublishBatchOutput{ResultMetadata: middleware.Metadata{}}
	for _, entry := range params.PublishBatchRequestEntries {
		if s.FailEntry != nil && s.FailEntry(entry) {
			result.Failed = append(result.Failed, snstypes.BatchResultErrorEntry{
				Id:      entry.Id,
				Code:    aws.String("InternalError"),
				Message: aws.String("mock failure"),
			})
			continue
		}
		result.Successful = append(result.Successful, snstypes.PublishBatchResultEntry{
			Id:        entry.Id,
			MessageId: aws.String("msg-" + aws.ToString(entry.Id)),
		})
	}
	return &result, nil
}

// Messages returns the bodies of all single publishes and successful batch entries.
func (s *MockSNS) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var messages []string
	for _, p := range s.Published {
		messages = append(messages, aws.ToString(p.Message))
	}
	for _, b := range s.Batches {
		for _, e := range b.PublishBatchRequestEntries {
			if s.FailEntry != nil && s.FailEntry(e) {
				continue
			}
			messages = append(messages, aws.ToString(e.Message))
		}
	}
	return messages
}

type MockSQS struct {
	mu   sync.Mutex
	Sent []*sqs.SendMessageInput
	Err  error
}

func (q *MockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	q.Sent = append(q.Sent, params)
	return &sqs.SendMessageOutput{
		MessageId:      aws.String(fmt.Sprintf("sqs-%d", len(q.Sent))),
		ResultMetadata: middleware.Metadata{},
	}, nil
}

// MockS3 serves Objects keyed by "bucket/key". Missing objects return NoSuchKey.
type MockS3 struct {
	Objects map[string]string
}

func (s MockS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := s.Objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body:           io.NopCloser(strings.NewReader(body)),
		ContentLength:  aws.Int64(int64(len(body))),
		ResultMetadata: middleware.Metadata{},
	}, nil
}

// MockLambda answers every Invoke with Payload, or with FunctionError when set.
type MockLambda struct {
	mu            sync.Mutex
	Invocations   []*lambda.InvokeInput
	Payload       []byte
	FunctionError string
	Err           error
}

func (l *MockLambda) Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Invocations = append(l.Invocations, params)
	if l.Err != nil {
		return nil, l.Err
	}
	out := lambda.InvokeOutput{
		StatusCode:     200,
		Payload:        l.Payload,
		ResultMetadata: middleware.Metadata{},
	}
	if l.FunctionError != "" {
		out.FunctionError = aws.String(l.FunctionError)
	}
	return &out, nil
}
