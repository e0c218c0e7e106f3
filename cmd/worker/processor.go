package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-idempotent-orderflow/internal/awsx"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/hashing"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/idempotency"
	"github.com/imrishuroy/go-idempotent-orderflow/internal/orders"
)

// createOrderFunctionName must match the functionName orders_handler.go
// passes to idempotency.New, since DeriveKey needs to reproduce the exact
// same row key the API handler's middleware already wrote.
const createOrderFunctionName = "CreateOrder"

// Processor handles SQS messages and performs order lifecycle transitions.
// It also finalizes the idempotency record when the API handler's own
// synchronous COMPLETED write did not land and the row is still INPROGRESS
// (or absent); a row that is already COMPLETED is left untouched.
type Processor struct {
	idempStore idempotency.Store
	orderStore *orders.Store
	logger     *zap.Logger
}

// ProcessorOption configures optional Processor collaborators.
type ProcessorOption func(*Processor)

// WithProcessorLogger attaches a structured logger.
func WithProcessorLogger(logger *zap.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a new worker processor with AWS clients injected.
func NewProcessor(clients *awsx.AWSClients, idempTable, ordersTable string, opts ...ProcessorOption) *Processor {
	p := &Processor{
		idempStore: idempotency.NewDynamoDBStore(clients.DynamoDB, idempTable),
		orderStore: orders.NewStore(clients.DynamoDB, ordersTable),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			p.logger.Error("worker failed to process message", zap.Error(err))
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg WorkerMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	p.logger.Info("received order message",
		zap.String("order_id", msg.OrderID),
		zap.String("idempotency_key", msg.IdempotencyKey),
		zap.String("correlation_id", msg.CorrelationID))

	order, err := p.orderStore.Get(ctx, msg.OrderID)
	if err != nil {
		return fmt.Errorf("failed to fetch order: %w", err)
	}
	if order == nil {
		return fmt.Errorf("order not found: %s", msg.OrderID)
	}

	err = p.orderStore.UpdateStatus(ctx, msg.OrderID, orders.StatusPending, orders.StatusProcessing)
	if err == orders.ErrStatusMismatch {
		o2, getErr := p.orderStore.Get(ctx, msg.OrderID)
		if getErr != nil {
			return fmt.Errorf("failed to re-fetch order after status mismatch: %w", getErr)
		}
		switch o2.Status {
		case orders.StatusCompleted:
			p.logger.Info("order already completed", zap.String("order_id", msg.OrderID))
			return nil
		case orders.StatusFailed:
			return fmt.Errorf("order=%s is already FAILED", msg.OrderID)
		case orders.StatusProcessing:
			p.logger.Info("duplicate processing event", zap.String("order_id", msg.OrderID))
			return nil
		default:
			return fmt.Errorf("unexpected status for order=%s: %s", msg.OrderID, o2.Status)
		}
	}
	if err != nil {
		return fmt.Errorf("failed to update status to PROCESSING: %w", err)
	}

	p.logger.Info("processing business logic", zap.String("order_id", msg.OrderID))
	time.Sleep(200 * time.Millisecond) // simulate processing work

	if err := p.orderStore.UpdateStatus(ctx, msg.OrderID, orders.StatusProcessing, orders.StatusCompleted); err != nil {
		return fmt.Errorf("failed to update status to COMPLETED: %w", err)
	}

	if err := p.finalizeIdempotencyRecord(ctx, msg); err != nil {
		return fmt.Errorf("failed to finalize idempotency record: %w", err)
	}

	p.logger.Info("order completed", zap.String("order_id", msg.OrderID))
	return nil
}

// finalizeIdempotencyRecord overwrites the INPROGRESS row the API handler
// created with a COMPLETED one carrying the final response, the way
// idempotency.Handler itself would for a synchronously-completed call. The
// row is looked up first so ExpiryTimestamp/PayloadHash survive the update.
//
// If the row is already COMPLETED, the handler's own synchronous completion
// inside the original request already wrote the response the caller
// received, so this is a no-op: the worker must never overwrite a response
// that has already gone out the door.
func (p *Processor) finalizeIdempotencyRecord(ctx context.Context, msg WorkerMessage) error {
	key, err := idempotency.DeriveKey(createOrderFunctionName, msg.IdempotencyKey, hashing.AlgorithmMD5)
	if err != nil {
		return fmt.Errorf("derive idempotency key: %w", err)
	}
	existing, err := p.idempStore.Get(ctx, key)
	if err != nil && err != idempotency.ErrItemNotFound {
		return err
	}

	if existing.Status == idempotency.StatusCompleted {
		p.logger.Info("idempotency record already completed by handler, skipping finalize",
			zap.String("order_id", msg.OrderID))
		return nil
	}

	responseData, err := json.Marshal(map[string]string{
		"order_id": msg.OrderID,
		"status":   orders.StatusCompleted,
	})
	if err != nil {
		return err
	}

	completed := existing
	completed.IdempotencyKey = key
	completed.Status = idempotency.StatusCompleted
	completed.ResponseData = string(responseData)
	completed.InProgressExpiryMs = 0
	if completed.ExpiryTimestamp == 0 {
		completed.ExpiryTimestamp = time.Now().Add(48 * time.Hour).Unix()
	}

	return p.idempStore.Update(ctx, completed)
}
