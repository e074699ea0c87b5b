package queue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOptions tunes the in-memory queue. Zero values fall back to the
// defaults used by the factory.
type MemoryOptions struct {
	BatchSize         int
	VisibilityTimeout time.Duration
	MaxAttempts       int
	PollInterval      time.Duration
}

type memoryMessage struct {
	id        string
	body      []byte
	attempts  int
	visibleAt time.Time
}

// Memory is an in-process Queue with the same delivery contract as SQS:
// at-least-once, visibility timeout, partial batch failure, dead-letter
// after MaxAttempts deliveries. Used in tests and standalone local mode.
type Memory struct {
	mu       sync.Mutex
	messages []*memoryMessage
	opts     MemoryOptions
	dead     *Memory // nil for the dead-letter queue itself
}

// NewMemory creates an in-memory queue with an attached dead-letter queue.
func NewMemory(opts MemoryOptions) *Memory {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Millisecond
	}
	dlqOpts := opts
	dlqOpts.MaxAttempts = 1 << 30 // the dead-letter queue never redirects
	return &Memory{
		opts: opts,
		dead: &Memory{opts: dlqOpts},
	}
}

// Dead returns the attached dead-letter queue.
func (q *Memory) Dead() *Memory {
	return q.dead
}

func (q *Memory) Send(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, &memoryMessage{
		id:   uuid.New().String(),
		body: slices.Clone(body),
	})
	return nil
}

// Consume polls for visible messages and hands batches to h until the
// context is done.
func (q *Memory) Consume(ctx context.Context, h Handler) error {
	ticker := time.NewTicker(q.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		batch := q.receive()
		if len(batch) == 0 {
			continue
		}
		failed := h(ctx, batch)
		q.settle(batch, failed)
	}
}

// receive claims up to BatchSize visible messages, hiding them for the
// visibility timeout.
func (q *Memory) receive() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var batch []Message
	for _, m := range q.messages {
		if len(batch) >= q.opts.BatchSize {
			break
		}
		if m.visibleAt.After(now) {
			continue
		}
		m.attempts++
		m.visibleAt = now.Add(q.opts.VisibilityTimeout)
		batch = append(batch, Message{ID: m.id, Body: slices.Clone(m.body), Attempts: m.attempts})
	}
	return batch
}

// settle deletes succeeded messages and makes failed ones immediately
// visible again, redirecting them to the dead-letter queue once their
// delivery attempts are exhausted.
func (q *Memory) settle(batch []Message, failed []string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var deadLettered []*memoryMessage
	for _, delivered := range batch {
		idx := slices.IndexFunc(q.messages, func(m *memoryMessage) bool { return m.id == delivered.ID })
		if idx < 0 {
			continue
		}
		m := q.messages[idx]
		if !slices.Contains(failed, delivered.ID) {
			q.messages = slices.Delete(q.messages, idx, idx+1)
			continue
		}
		if m.attempts >= q.opts.MaxAttempts {
			q.messages = slices.Delete(q.messages, idx, idx+1)
			deadLettered = append(deadLettered, m)
			continue
		}
		m.visibleAt = time.Time{}
	}

	if q.dead != nil {
		for _, m := range deadLettered {
			q.dead.mu.Lock()
			q.dead.messages = append(q.dead.messages, &memoryMessage{id: m.id, body: m.body})
			q.dead.mu.Unlock()
		}
	}
}

// Len reports how many messages are currently stored, visible or not.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

var _ Queue = (*Memory)(nil)
