package worker

import (
	"context"
	"errors"

	"nelfy/internal/amqp"
	"nelfy/internal/log"
)

// StatusConsumer delivers paid status changes.
type StatusConsumer interface {
	ConsumeStatusChanged(ctx context.Context, fn func(context.Context, *amqp.StatusChangedMessage) error) error
}

// StatusHandler reacts to a status change, typically by evicting cached
// installments.
type StatusHandler func(ctx context.Context, msg *amqp.StatusChangedMessage) error

// RunInvalidation feeds status changes to handle until ctx is done.
func RunInvalidation(ctx context.Context, consumer StatusConsumer, handle StatusHandler) error {
	log.FromContext(ctx).WithComponent(log.ComponentCache).InfoContext(ctx, "Listening for status changes")
	err := consumer.ConsumeStatusChanged(ctx, handle)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
