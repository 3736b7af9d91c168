package signals

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"folio/engine/internal/app"
	"folio/engine/internal/domain"
	"folio/engine/internal/logging"
	"folio/engine/internal/metrics"
	"folio/engine/internal/store"
)

const (
	defaultBlock = 5 * time.Second
	defaultCount = 16
)

// Coordinator is the part of app.Service the consumer drives.
type Coordinator interface {
	Submit(ctx context.Context, in app.TransitionInput) (app.MergeStatus, error)
	Approve(ctx context.Context, in app.TransitionInput) (app.ApproveResult, error)
	Reject(ctx context.Context, in app.TransitionInput) (store.Revision, error)
}

type Options struct {
	Client       *redis.Client
	Stream       string
	Group        string
	Consumer     string
	ResultStream string
	// Block bounds each XREADGROUP wait. Count caps the batch size.
	Block   time.Duration
	Count   int64
	Backoff func() backoff.BackOff
	Metrics *metrics.Metrics
	Logger  logging.Logger
}

type Consumer struct {
	coordinator Coordinator
	client      *redis.Client
	stream      string
	group       string
	name        string
	results     string
	block       time.Duration
	count       int64
	newBackoff  func() backoff.BackOff
	metrics     *metrics.Metrics
	logger      logging.Logger
}

func NewConsumer(coordinator Coordinator, opts Options) *Consumer {
	c := &Consumer{
		coordinator: coordinator,
		client:      opts.Client,
		stream:      opts.Stream,
		group:       opts.Group,
		name:        opts.Consumer,
		results:     opts.ResultStream,
		block:       opts.Block,
		count:       opts.Count,
		newBackoff:  opts.Backoff,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	if c.block <= 0 {
		c.block = defaultBlock
	}
	if c.count <= 0 {
		c.count = defaultCount
	}
	if c.newBackoff == nil {
		c.newBackoff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		}
	}
	if c.logger == nil {
		c.logger = logging.New("signals")
	}
	return c
}

// EnsureGroup creates the consumer group, and the stream with it, unless
// the group already exists.
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

// Run consumes until ctx is cancelled. Entries this consumer left pending
// in an earlier run are handled once before new entries are read. Read
// failures are retried with backoff; Run only returns an error when the
// backoff gives up.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	c.logger.Infow("signal consumer started", "stream", c.stream, "group", c.group, "consumer", c.name)

	if err := c.drainPending(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warnw("replaying pending signals failed", "error", err)
	}

	b := c.newBackoff()
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := c.Poll(ctx)
		if err == nil {
			b.Reset()
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("read signals: %w", err)
		}
		c.logger.Warnw("reading signals failed", "error", err, "retry_in", wait.String())
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// Poll reads one batch of new entries and handles them. It reports how many
// entries were read.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	messages, err := c.readBatch(ctx, ">", c.block)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		if err := c.Handle(ctx, msg); err != nil {
			c.logger.Errorw("signal left unacknowledged", "signal_id", msg.ID, "error", err)
		}
	}
	return len(messages), nil
}

// drainPending walks this consumer's pending entries once, oldest first.
func (c *Consumer) drainPending(ctx context.Context) error {
	start := "0"
	for {
		messages, err := c.readBatch(ctx, start, -1)
		if err != nil || len(messages) == 0 {
			return err
		}
		for _, msg := range messages {
			if err := c.Handle(ctx, msg); err != nil {
				c.logger.Warnw("pending signal left unacknowledged", "signal_id", msg.ID, "error", err)
			}
			start = msg.ID
		}
	}
}

// readBatch reads from start; a negative block returns without waiting.
func (c *Consumer) readBatch(ctx context.Context, start string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, start},
		Count:    c.count,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var messages []redis.XMessage
	for _, stream := range streams {
		messages = append(messages, stream.Messages...)
	}
	return messages, nil
}

// Handle dispatches one entry. Outcomes the caller can act on are reported
// to the result stream and acknowledged; internal failures are returned and
// the entry stays pending for redelivery.
func (c *Consumer) Handle(ctx context.Context, msg redis.XMessage) error {
	sig, err := parseSignal(msg)
	if err != nil {
		c.metrics.AddSignal(string(sig.Type), "invalid")
		return c.finish(ctx, msg.ID, Result{
			SignalID:       msg.ID,
			DocumentID:     sig.DocumentID,
			Type:           sig.Type,
			Status:         "invalid",
			Code:           "INVALID_SIGNAL",
			Message:        err.Error(),
			RevisionNumber: sig.RevisionNumber,
		})
	}

	result, err := c.dispatch(ctx, sig)
	result.Status = app.Outcome(err)
	c.metrics.AddSignal(string(sig.Type), result.Status)
	if domain.KindOf(err) == domain.KindInternal {
		return fmt.Errorf("%s %s: %w", sig.Type, sig.DocumentID, err)
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		result.Code = domainErr.Code
		result.Message = domainErr.Message
	}

	c.logger.Infow("signal handled",
		"signal_id", msg.ID,
		"type", sig.Type,
		"document_id", sig.DocumentID,
		"status", result.Status,
		"code", result.Code,
	)
	return c.finish(ctx, msg.ID, result)
}

func (c *Consumer) dispatch(ctx context.Context, sig Signal) (Result, error) {
	in := app.TransitionInput{
		DocumentID:    sig.DocumentID,
		VersionNumber: sig.RevisionNumber,
		Actor:         sig.Actor,
		Comment:       sig.Comment,
	}
	result := Result{
		SignalID:       sig.ID,
		DocumentID:     sig.DocumentID,
		Type:           sig.Type,
		RevisionNumber: sig.RevisionNumber,
	}

	switch sig.Type {
	case TypeSubmit:
		status, err := c.coordinator.Submit(ctx, in)
		if err != nil {
			return result, err
		}
		result.RevisionNumber = status.VersionNumber
		result.PublishedVersion = status.PublishedVersion
	case TypeApprove:
		approved, err := c.coordinator.Approve(ctx, in)
		if err != nil {
			return result, err
		}
		result.RevisionNumber = approved.Draft.VersionNumber
		result.PublishedVersion = approved.Published.VersionNumber
	case TypeReject:
		rejected, err := c.coordinator.Reject(ctx, in)
		if err != nil {
			return result, err
		}
		result.RevisionNumber = rejected.VersionNumber
	}
	return result, nil
}

// finish reports result and acknowledges the entry. A failed report leaves
// the entry pending.
func (c *Consumer) finish(ctx context.Context, id string, result Result) error {
	if c.results != "" {
		if err := c.client.XAdd(ctx, &redis.XAddArgs{Stream: c.results, Values: result.Values()}).Err(); err != nil {
			return fmt.Errorf("write result for %s: %w", id, err)
		}
	}
	if err := c.client.XAck(ctx, c.stream, c.group, id).Err(); err != nil {
		return fmt.Errorf("ack %s: %w", id, err)
	}
	return nil
}
