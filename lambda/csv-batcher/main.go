package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/catalog-ingest/ingest-service/lambda/csv-batcher/handler"
	"github.com/catalog-ingest/ingest-service/pkg/blob"
	appConfig "github.com/catalog-ingest/ingest-service/pkg/config"
	"github.com/catalog-ingest/ingest-service/pkg/dispatch"
	"github.com/catalog-ingest/ingest-service/pkg/logging"
	log "github.com/sirupsen/logrus"
)

var batcherHandler *handler.BatcherHandler

func init() {
	logging.Init()
	settings := appConfig.Load()

	topicArn, err := appConfig.Required("TOPIC_ARN")
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("LoadDefaultConfig: %v\n", err)
	}

	batcherHandler = &handler.BatcherHandler{
		Objects:        blob.NewS3Source(blob.NewClientCache(blob.DefaultLoader)),
		Dispatcher:     dispatch.NewPublisher(sns.NewFromConfig(cfg), topicArn, settings.DispatchRate),
		Workers:        settings.DispatchWorkers,
		MaxPayloadSize: settings.MaxPayloadSize,
		RowSchema:      settings.RowSchema,
	}
}

func main() {
	lambda.Start(batcherHandler.Handle)
}
