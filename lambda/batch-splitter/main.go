package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/catalog-ingest/ingest-service/lambda/batch-splitter/handler"
	appConfig "github.com/catalog-ingest/ingest-service/pkg/config"
	"github.com/catalog-ingest/ingest-service/pkg/logging"
	log "github.com/sirupsen/logrus"
)

var splitterHandler *handler.SplitterHandler

func init() {
	logging.Init()

	topicArn, err := appConfig.Required("TOPIC_ARN")
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("LoadDefaultConfig: %v\n", err)
	}

	splitterHandler = &handler.SplitterHandler{
		SNS:       sns.NewFromConfig(cfg),
		TopicArn:  topicArn,
		RowSchema: appConfig.Load().RowSchema,
	}
}

func main() {
	lambda.Start(splitterHandler.Handle)
}
