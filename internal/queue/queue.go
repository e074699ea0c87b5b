package queue

import "context"

// Message is one delivery from the work queue. Attempts counts deliveries
// including the current one.
type Message struct {
	ID       string
	Body     []byte
	Attempts int
}

// Handler processes one batch and returns the IDs of messages that must
// be redelivered. Messages absent from the returned slice are deleted.
type Handler func(ctx context.Context, batch []Message) []string

// Producer enqueues messages.
type Producer interface {
	Send(ctx context.Context, body []byte) error
}

// Consumer delivers batches to a handler until the context is done.
// Delivery is at least once: a message whose processing outlives the
// visibility timeout reappears for another worker.
type Consumer interface {
	Consume(ctx context.Context, h Handler) error
}

// Queue is a durable at-least-once work queue.
type Queue interface {
	Producer
	Consumer
}
