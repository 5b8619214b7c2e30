package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"custody-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	approvalStream = "tx_approval_events"
	approvalGroup  = "custody-workers"

	// Pending entries idle this long get reclaimed by another consumer, so a
	// crashed worker cannot strand an event. Redelivery is the at-least-once
	// part of the contract; handlers are idempotent.
	reclaimIdle = time.Minute
)

// Handler processes one approval event. Returning an error leaves the event
// pending for redelivery.
type Handler func(ctx context.Context, event domain.ApprovalEvent) error

// RedisBus is the approval event bus, backed by a Redis stream with a
// consumer group.
type RedisBus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

func NewRedisBus(rdb *redis.Client, logger *zap.Logger) *RedisBus {
	return &RedisBus{
		rdb:    rdb,
		logger: logger,
	}
}

// PublishApproval appends an approval event to the stream.
func (b *RedisBus) PublishApproval(ctx context.Context, event domain.ApprovalEvent) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: approvalStream,
		Values: map[string]any{
			"tenant_id":  event.TenantID,
			"request_id": event.RequestID,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish approval event: %w", err)
	}

	b.logger.Debug("approval event published",
		zap.String("tenant_id", event.TenantID),
		zap.String("request_id", event.RequestID))

	return nil
}

// EnsureGroup creates the consumer group if it does not exist yet.
func (b *RedisBus) EnsureGroup(ctx context.Context) error {
	err := b.rdb.XGroupCreateMkStream(ctx, approvalStream, approvalGroup, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Consume reads approval events for one named consumer until the context is
// cancelled. Successfully handled events are acked; failed ones stay pending
// and are eventually reclaimed, possibly by a different consumer.
func (b *RedisBus) Consume(ctx context.Context, consumer string, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.reclaimStale(ctx, consumer, handler)

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    approvalGroup,
			Consumer: consumer,
			Streams:  []string{approvalStream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error("failed to read approval events", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.handleMessage(ctx, consumer, msg, handler)
			}
		}
	}
}

func (b *RedisBus) reclaimStale(ctx context.Context, consumer string, handler Handler) {
	msgs, _, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   approvalStream,
		Group:    approvalGroup,
		Consumer: consumer,
		MinIdle:  reclaimIdle,
		Start:    "0",
		Count:    10,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() == nil {
			b.logger.Warn("failed to reclaim stale approval events", zap.Error(err))
		}
		return
	}

	for _, msg := range msgs {
		b.handleMessage(ctx, consumer, msg, handler)
	}
}

func (b *RedisBus) handleMessage(ctx context.Context, consumer string, msg redis.XMessage, handler Handler) {
	event, ok := parseEvent(msg)
	if !ok {
		b.logger.Warn("dropping malformed approval event", zap.String("message_id", msg.ID))
		b.rdb.XAck(ctx, approvalStream, approvalGroup, msg.ID)
		return
	}

	if err := handler(ctx, event); err != nil {
		b.logger.Error("approval event handling failed, leaving pending",
			zap.String("message_id", msg.ID),
			zap.String("request_id", event.RequestID),
			zap.String("consumer", consumer),
			zap.Error(err))
		return
	}

	if err := b.rdb.XAck(ctx, approvalStream, approvalGroup, msg.ID).Err(); err != nil && ctx.Err() == nil {
		// The event will be redelivered; the idempotent handler absorbs it.
		b.logger.Warn("failed to ack approval event", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

func parseEvent(msg redis.XMessage) (domain.ApprovalEvent, bool) {
	tenantID, ok1 := msg.Values["tenant_id"].(string)
	requestID, ok2 := msg.Values["request_id"].(string)
	if !ok1 || !ok2 || tenantID == "" || requestID == "" {
		return domain.ApprovalEvent{}, false
	}
	return domain.ApprovalEvent{TenantID: tenantID, RequestID: requestID}, true
}
