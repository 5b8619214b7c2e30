package domain

import "context"

// ApprovalEventBus carries approval events to the completion workers.
// Delivery is at-least-once; handlers must be idempotent.
type ApprovalEventBus interface {
	PublishApproval(ctx context.Context, event ApprovalEvent) error
}
