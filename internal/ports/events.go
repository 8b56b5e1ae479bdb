package ports

import "context"

// EventPublisher is the outbound activation-event publish port.
// The worker uses this abstraction to keep broker concerns in adapters.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, partitionKey string, payload []byte) error
}
