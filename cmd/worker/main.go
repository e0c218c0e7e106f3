package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
)

type workerEnvConfig struct {
	IdempotencyTable string `envconfig:"IDEMPOTENCY_TABLE" required:"true"`
	OrdersTable      string `envconfig:"ORDERS_TABLE" required:"true"`
	RunLocal         bool   `envconfig:"RUN_LOCAL" default:"false"`
	LocalSQSBody     string `envconfig:"LOCAL_SQS_BODY"`
}

func newWorkerLogger(runLocal bool) *zap.Logger {
	if runLocal {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	return logger
}

func main() {
	var env workerEnvConfig
	if err := envconfig.Process("", &env); err != nil {
		panic("failed to load environment configuration: " + err.Error())
	}

	logger := newWorkerLogger(env.RunLocal)
	defer logger.Sync()

	clients, err := awsx.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	processor := NewProcessor(clients, env.IdempotencyTable, env.OrdersTable, WithProcessorLogger(logger))

	if env.RunLocal {
		body := env.LocalSQSBody
		if body == "" {
			body = `{"order_id":"local-order-1","idempotency_key":"local-key-1"}`
		}
		event := events.SQSEvent{
			Records: []events.SQSMessage{{Body: body}},
		}
		if err := processor.Handle(context.Background(), event); err != nil {
			logger.Fatal("local handler error", zap.Error(err))
		}
		return
	}

	lambda.Start(processor.Handle)
}
