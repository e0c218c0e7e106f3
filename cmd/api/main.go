package main

import (
	"context"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/handlers"
)

// envConfig collects the Lambda's environment variables into a single
// typed, tagged struct.
type envConfig struct {
	IdempotencyTable string        `envconfig:"IDEMPOTENCY_TABLE" required:"true"`
	OrdersTable      string        `envconfig:"ORDERS_TABLE" required:"true"`
	OrdersQueueURL   string        `envconfig:"ORDERS_QUEUE_URL" required:"true"`
	MetricsNamespace string        `envconfig:"METRICS_NAMESPACE" default:"IdempotentOrderFlow"`
	TTLWindow        time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"48h"`
	ExecutionTimeout time.Duration `envconfig:"IDEMPOTENCY_EXECUTION_TIMEOUT" default:"30s"`
	RunLocal         bool          `envconfig:"RUN_LOCAL" default:"false"`
}

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterOrdersRoutes(r, cfg)

	return r
}

func newLogger(runLocal bool) *zap.Logger {
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
	var env envConfig
	if err := envconfig.Process("", &env); err != nil {
		panic("failed to load environment configuration: " + err.Error())
	}

	logger := newLogger(env.RunLocal)
	defer logger.Sync()

	clients, err := awsx.NewAWSClients(context.Background())
	if err != nil {
		logger.Fatal("failed to init aws clients", zap.Error(err))
	}

	metrics := awsx.NewMetricsEmitter(clients.CloudWatch, env.MetricsNamespace)

	cfg := handlers.HandlerConfig{
		DynamoDBClient:   clients.DynamoDB,
		SQSClient:        clients.SQS,
		IdempotencyTable: env.IdempotencyTable,
		OrdersTable:      env.OrdersTable,
		QueueURL:         env.OrdersQueueURL,
		TTLWindow:        env.TTLWindow,
		ExecutionTimeout: env.ExecutionTimeout,
		Metrics:          metrics,
	}

	r := setupRouter(cfg)

	if env.RunLocal {
		addr := ":8080"
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (interface{}, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
