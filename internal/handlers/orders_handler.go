package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/orders"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/validation"
)

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	DynamoDBClient   awsx.DynamoDBAPI
	SQSClient        awsx.SQSAPI
	IdempotencyTable string
	OrdersTable      string
	QueueURL         string
	TTLWindow        time.Duration
	ExecutionTimeout time.Duration
	Metrics          *awsx.MetricsEmitter
}

// createOrderResponse is the response type the idempotency middleware caches
// and replays for a duplicate request.
type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// RegisterOrdersRoutes registers routes for order API. The idempotency
// guarantee is applied once, at registration time, by wrapping the order
// creation logic with idempotency.MakeIdempotent rather than by hand-rolling
// the NEW/INPROGRESS/COMPLETED branching inline in the route.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	ordersStore := orders.NewStore(cfg.DynamoDBClient, cfg.OrdersTable)
	publisher := awsx.NewPublisher(cfg.SQSClient, cfg.QueueURL)

	idempStore := idempotency.NewDynamoDBStore(cfg.DynamoDBClient, cfg.IdempotencyTable)
	idempCfg, err := idempotency.NewConfig("idempotency_key",
		idempotency.WithPayloadValidationJMESPath("body"),
		idempotency.WithRecordTTL(cfg.TTLWindow),
		idempotency.WithExecutionTimeout(cfg.ExecutionTimeout),
		idempotency.WithLocalCache(256),
	)
	if err != nil {
		panic("orders handler: invalid idempotency configuration: " + err.Error())
	}
	idempHandler, err := idempotency.New(idempStore, "CreateOrder", idempCfg, idempotency.WithMetrics(cfg.Metrics))
	if err != nil {
		panic("orders handler: failed to build idempotency handler: " + err.Error())
	}

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()

		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			return
		}

		idempKey := c.GetHeader("Idempotency-Key")
		if err := validation.ValidateIdempotencyKey(v, idempKey); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing_idempotency_key"})
			return
		}

		now := time.Now().UTC()

		items := make([]map[string]interface{}, 0, len(req.Items))
		for _, it := range req.Items {
			items = append(items, map[string]interface{}{
				"sku":      it.SKU,
				"quantity": it.Quantity,
				"price":    it.Price,
			})
		}

		event := map[string]interface{}{
			"idempotency_key": idempKey,
			"body": map[string]interface{}{
				"customer_id": req.CustomerID,
				"amount":      req.Amount,
				"items":       items,
				"metadata":    req.Metadata,
			},
		}

		create := func(ctx context.Context, _ any) (createOrderResponse, error) {
			orderID := uuid.NewString()
			order := orders.Order{
				OrderID:    orderID,
				CustomerID: req.CustomerID,
				Status:     orders.StatusPending,
				Amount:     req.Amount,
				Items:      items,
				Metadata:   req.Metadata,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := ordersStore.Create(ctx, order); err != nil {
				return createOrderResponse{}, err
			}

			payload, err := orders.MarshalDispatchPayload(orderID, idempKey)
			if err != nil {
				return createOrderResponse{}, err
			}
			attrs := map[string]string{
				"idempotency_key": idempKey,
				"order_id":        orderID,
				"correlation_id":  c.GetHeader("X-Request-Id"),
			}
			if err := publisher.SendOrderMessage(ctx, payload, attrs); err != nil {
				return createOrderResponse{}, err
			}

			return createOrderResponse{OrderID: orderID, Status: orders.StatusPending}, nil
		}

		wrapped := idempotency.MakeIdempotent(idempHandler, idempotency.IdempotentFunc[createOrderResponse](create))
		resp, err := wrapped(ctx, event)
		if err != nil {
			if idempotency.IsAlreadyInProgress(err) {
				c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
				return
			}
			if idempotency.IsPayloadValidationFailed(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "idempotency_key_reused_with_different_payload"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "order_creation_failed", "detail": err.Error()})
			return
		}

		c.Header("Location", "/orders/"+resp.OrderID)
		c.JSON(http.StatusCreated, resp)
	})
}
