package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Handler dispatches one decoded envelope. Returning any error leaves the
// message pending for reclaim; the consumer does not distinguish error
// kinds, and a message still failing after MaxRetries deliveries is
// dead-lettered.
type Handler interface {
	Handle(ctx context.Context, env Envelope) error
}

// ConsumerConfig configures a Consumer's batching and retry behavior.
type ConsumerConfig struct {
	Group        string
	Name         string
	Handler      Handler
	Logger       zerolog.Logger
	BatchSize    int
	BlockFor     time.Duration
	PendingCheck time.Duration
	PendingIdle  time.Duration
	MaxRetries   int
}

// Consumer reads from the shared stream as part of a consumer group,
// dispatching to Handler and periodically reclaiming messages stuck pending
// past PendingIdle.
type Consumer struct {
	client  *redis.Client
	group   string
	name    string
	handler Handler
	log     zerolog.Logger

	batchSize    int64
	blockFor     time.Duration
	pendingCheck time.Duration
	pendingIdle  time.Duration
	maxRetries   int64
}

// NewConsumer builds a Consumer, filling in the same defaults the teacher
// queue used: 30s pending-check interval, 2m idle threshold, 3 retries.
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 50
	}
	blockFor := cfg.BlockFor
	if blockFor == 0 {
		blockFor = 5 * time.Second
	}
	pendingCheck := cfg.PendingCheck
	if pendingCheck == 0 {
		pendingCheck = 30 * time.Second
	}
	pendingIdle := cfg.PendingIdle
	if pendingIdle == 0 {
		pendingIdle = 2 * time.Minute
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Consumer{
		client:       client,
		group:        cfg.Group,
		name:         cfg.Name,
		handler:      cfg.Handler,
		log:          cfg.Logger,
		batchSize:    int64(batchSize),
		blockFor:     blockFor,
		pendingCheck: pendingCheck,
		pendingIdle:  pendingIdle,
		maxRetries:   maxRetries,
	}
}

// Run consumes until ctx is cancelled. It creates the consumer group if
// absent, spawns the pending-message reclaimer, and loops on XREADGROUP.
func (c *Consumer) Run(ctx context.Context) error {
	c.ensureGroup(ctx)
	go c.reclaimLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		result, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.name,
			Streams:  []string{Stream, ">"},
			Count:    c.batchSize,
			Block:    c.blockFor,
		}).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			c.log.Error().Err(err).Msg("xreadgroup failed")
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range result {
			for _, msg := range stream.Messages {
				c.process(ctx, msg)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg redis.XMessage) {
	env, err := decodeMessage(msg)
	if err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("malformed queue message, acking to drop")
		c.client.XAck(ctx, Stream, c.group, msg.ID)
		return
	}

	if err := c.handler.Handle(ctx, env); err != nil {
		c.log.Warn().Err(err).Str("id", msg.ID).Str("type", string(env.Type)).Msg("handler failed, leaving pending for retry")
		return
	}

	if err := c.client.XAck(ctx, Stream, c.group, msg.ID).Err(); err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("ack failed")
	}
}

func (c *Consumer) ensureGroup(ctx context.Context) {
	err := c.client.XGroupCreateMkStream(ctx, Stream, c.group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		c.log.Warn().Err(err).Msg("create consumer group failed")
	}
}

func (c *Consumer) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.reclaimPending(ctx)
		}
	}
}

func (c *Consumer) reclaimPending(ctx context.Context) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: Stream,
		Group:  c.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Error().Err(err).Msg("xpending failed")
		}
		return
	}

	for _, p := range pending {
		if p.Idle < c.pendingIdle {
			continue
		}

		if p.RetryCount >= c.maxRetries {
			c.deadLetter(ctx, p.ID)
			c.client.XAck(ctx, Stream, c.group, p.ID)
			continue
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   Stream,
			Group:    c.group,
			Consumer: c.name,
			MinIdle:  c.pendingIdle,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("xclaim failed")
			continue
		}
		for _, msg := range claimed {
			c.process(ctx, msg)
		}
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msgID string) {
	entries, err := c.client.XRange(ctx, Stream, msgID, msgID).Result()
	if err != nil || len(entries) == 0 {
		return
	}
	dlq := "dlq:" + Stream
	values := map[string]interface{}{
		"original_id": msgID,
		"failed_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range entries[0].Values {
		values["original_"+k] = v
	}
	c.client.XAdd(ctx, &redis.XAddArgs{Stream: dlq, Values: values})
}

func decodeMessage(msg redis.XMessage) (Envelope, error) {
	raw, ok := msg.Values["data"]
	if !ok {
		return Envelope{}, fmt.Errorf("missing data field")
	}
	s, ok := raw.(string)
	if !ok {
		return Envelope{}, fmt.Errorf("data field is not a string")
	}
	var env Envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}
