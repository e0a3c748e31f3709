package dispatch

import "context"

// Notifier forwards faulty connectors to the maintenance platform. Calls are
// fire-and-forget from the caller's point of view.
type Notifier interface {
	Notify(ctx context.Context, siteNo string, chargerSNs []string) error
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, []string) error { return nil }
