package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsLambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/catalog-ingest/ingest-service/lambda/command/handler"
	"github.com/catalog-ingest/ingest-service/pkg/claim"
	appConfig "github.com/catalog-ingest/ingest-service/pkg/config"
	"github.com/catalog-ingest/ingest-service/pkg/executor"
	"github.com/catalog-ingest/ingest-service/pkg/incident"
	"github.com/catalog-ingest/ingest-service/pkg/logging"
	"github.com/catalog-ingest/ingest-service/pkg/store"
	log "github.com/sirupsen/logrus"
)

var commandHandler *handler.CommandHandler

func init() {
	logging.Init()
	settings := appConfig.Load()

	tableName, err := appConfig.Required("TABLE_NAME")
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatalf("LoadDefaultConfig: %v\n", err)
	}

	var exec executor.Executor = executor.Delay{Duration: settings.WorkDelay}
	if settings.WorkFunctionName != "" {
		exec = executor.NewLambda(awsLambda.NewFromConfig(cfg), settings.WorkFunctionName)
	}

	var reporter incident.Reporter = incident.Log{}
	if settings.IncidentQueueURL != "" {
		reporter = incident.NewSQS(sqs.NewFromConfig(cfg), settings.IncidentQueueURL)
	}

	protocol := claim.NewProtocol(store.NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName))
	commandHandler = &handler.CommandHandler{
		Worker:    claim.NewWorker(protocol, exec, reporter),
		RowSchema: settings.RowSchema,
	}
}

func main() {
	lambda.Start(commandHandler.Handle)
}
