package notifier

import (
	"context"

	"ClassFund/internal/model"
)

// NoopNotifier drops every event. Used when Telegram is not configured.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier { return &NoopNotifier{} }

func (n *NoopNotifier) Send(_ string) error { return nil }

func (n *NoopNotifier) NotifyArchive(_ context.Context, _ model.ArchiveEvent) error {
	return nil
}
