package eventstream

import "context"

// Publisher publishes document lifecycle events to an event stream backend.
type Publisher interface {
	PublishDocument(ctx context.Context, event *DocumentEvent) error
	Close() error
}
