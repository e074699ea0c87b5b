package queue

import (
	"fmt"

	"github.com/pawel/toolgate/internal/config"
)

// New creates the work queue and its dead-letter queue based on the
// configuration.
// Parameters:
//   - cfg: queue configuration including driver and delivery knobs.
// Returns:
//   - Queue: the work queue.
//   - Queue: the dead-letter queue.
//   - error: non-nil if the queues cannot be created.
func New(cfg *config.QueueConfig) (Queue, Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		q := NewMemory(MemoryOptions{
			BatchSize:         cfg.BatchSize,
			VisibilityTimeout: cfg.VisibilityTimeout,
			MaxAttempts:       cfg.MaxAttempts,
		})
		return q, q.Dead(), nil
	case "sqs":
		main, err := NewSQS(SQSOptions{
			URL:               cfg.URL,
			Region:            cfg.Region,
			Endpoint:          cfg.Endpoint,
			BatchSize:         cfg.BatchSize,
			VisibilityTimeout: cfg.VisibilityTimeout,
			WaitTime:          cfg.WaitTime,
		})
		if err != nil {
			return nil, nil, err
		}
		dead, err := NewSQS(SQSOptions{
			URL:               cfg.DeadLetterURL,
			Region:            cfg.Region,
			Endpoint:          cfg.Endpoint,
			BatchSize:         cfg.BatchSize,
			VisibilityTimeout: cfg.VisibilityTimeout,
			WaitTime:          cfg.WaitTime,
		})
		if err != nil {
			return nil, nil, err
		}
		return main, dead, nil
	default:
		return nil, nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}
