package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/pawel/toolgate/internal/logger"
)

// SQSOptions configures one SQS-backed queue.
type SQSOptions struct {
	URL               string
	Region            string
	Endpoint          string // local SQS override
	BatchSize         int
	VisibilityTimeout time.Duration
	WaitTime          time.Duration
}

// SQS is a Queue backed by one Amazon SQS queue. Partial batch failure is
// expressed by deleting only the succeeded messages: the failed ones
// reappear after the visibility timeout, and the queue's redrive policy
// owns the dead-letter redirect.
type SQS struct {
	client *sqs.Client
	opts   SQSOptions
}

// NewSQS creates an SQS-backed queue.
func NewSQS(opts SQSOptions) (*SQS, error) {
	if opts.BatchSize <= 0 || opts.BatchSize > 10 {
		opts.BatchSize = 10
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.WaitTime <= 0 {
		opts.WaitTime = 20 * time.Second
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(opts.Region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return &SQS{client: client, opts: opts}, nil
}

func (q *SQS) Send(ctx context.Context, body []byte) error {
	_, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.opts.URL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// Consume long-polls the queue and hands batches to h until the context
// is done.
func (q *SQS) Consume(ctx context.Context, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(q.opts.URL),
			MaxNumberOfMessages:   int32(q.opts.BatchSize),
			WaitTimeSeconds:       int32(q.opts.WaitTime.Seconds()),
			VisibilityTimeout:     int32(q.opts.VisibilityTimeout.Seconds()),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.CtxWarn(ctx, "Receive failed, backing off: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if len(out.Messages) == 0 {
			continue
		}

		batch := make([]Message, 0, len(out.Messages))
		handles := make(map[string]string, len(out.Messages))
		for _, m := range out.Messages {
			attempts := 1
			if rc, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
				if n, convErr := strconv.Atoi(rc); convErr == nil {
					attempts = n
				}
			}
			id := aws.ToString(m.MessageId)
			handles[id] = aws.ToString(m.ReceiptHandle)
			batch = append(batch, Message{
				ID:       id,
				Body:     []byte(aws.ToString(m.Body)),
				Attempts: attempts,
			})
		}

		failed := h(ctx, batch)
		failedSet := make(map[string]struct{}, len(failed))
		for _, id := range failed {
			failedSet[id] = struct{}{}
		}

		// Delete only the succeeded messages; the rest reappear after the
		// visibility timeout.
		for _, m := range batch {
			if _, isFailed := failedSet[m.ID]; isFailed {
				continue
			}
			if _, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(q.opts.URL),
				ReceiptHandle: aws.String(handles[m.ID]),
			}); err != nil {
				logger.CtxWarn(ctx, "Delete failed for message %s, it will be redelivered: %v", m.ID, err)
			}
		}
	}
}

var _ Queue = (*SQS)(nil)
