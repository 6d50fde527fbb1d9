// Package blob streams uploaded objects from S3.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	log "github.com/sirupsen/logrus"
)

// Object locates an uploaded object. It is also the body of the change events
// published by the router.
type Object struct {
	Region string `json:"region"`
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func (o Object) String() string {
	return fmt.Sprintf("s3://%s/%s", o.Bucket, o.Key)
}

type ObjectNotFoundError struct {
	Bucket string
	Key    string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("S3 object cannot be read: %s / %s", e.Bucket, e.Key)
}

// S3Source opens objects with a client for the object's region.
type S3Source struct {
	clients *ClientCache
}

func NewS3Source(clients *ClientCache) *S3Source {
	return &S3Source{clients: clients}
}

// Open returns the object's body. The caller must close it.
func (s *S3Source) Open(ctx context.Context, obj Object) (io.ReadCloser, error) {
	client, err := s.clients.GetOrLoad(ctx, obj.Region)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(obj.Bucket),
		Key:    aws.String(obj.Key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, &ObjectNotFoundError{Bucket: obj.Bucket, Key: obj.Key}
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			log.WithFields(log.Fields{
				"object": obj.String(),
				"code":   apiErr.ErrorCode(),
				"fault":  apiErr.ErrorFault().String(),
			}).Error(apiErr.ErrorMessage())
		}
		return nil, fmt.Errorf("get object %s: %w", obj, err)
	}

	log.WithFields(log.Fields{
		"object": obj.String(),
		"size":   aws.ToInt64(out.ContentLength),
	}).Debug("opened object")
	return out.Body, nil
}
