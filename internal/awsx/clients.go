package awsx

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// DynamoDBAPI is the subset of the DynamoDB client the rest of this repo
// depends on. Defining it as an interface (rather than importing
// *dynamodb.Client everywhere) lets tests substitute an in-memory fake
// without touching real AWS.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// SQSAPI is the subset of the SQS client used to publish order messages.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// CloudWatchAPI is the subset of the CloudWatch client used to emit
// idempotency outcome metrics.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// AWSClients bundles all service clients for convenience.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

var (
	clientsOnce sync.Once
	clients     *AWSClients
	clientsErr  error
)

// NewAWSClients loads AWS config and returns concrete service clients that
// implement our interfaces. Construction is idempotent and lazy: the
// underlying clients are created exactly once per process and reused across
// warm-start invocations, the way the Lambda execution model expects.
func NewAWSClients(ctx context.Context) (*AWSClients, error) {
	clientsOnce.Do(func() {
		cfg, err := LoadAWSConfig(ctx)
		if err != nil {
			clientsErr = err
			return
		}

		clients = &AWSClients{
			DynamoDB:   dynamodb.NewFromConfig(cfg),
			SQS:        sqs.NewFromConfig(cfg),
			CloudWatch: cloudwatch.NewFromConfig(cfg),
		}
	})
	return clients, clientsErr
}
