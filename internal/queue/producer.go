package queue

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// Producer publishes message envelopes onto the shared stream.
type Producer struct {
	client *redis.Client
}

// NewProducer creates a Producer over an existing Redis client.
func NewProducer(client *redis.Client) *Producer {
	return &Producer{client: client}
}

// Publish encodes payload as Type and appends it to the stream.
func (p *Producer) Publish(ctx context.Context, t Type, payload any) error {
	env, err := Encode(t, payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.publishEnvelope(ctx, env)
}

// PublishBatch publishes several envelopes via a single pipeline round trip.
func (p *Producer) PublishBatch(ctx context.Context, envelopes []Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	pipe := p.client.Pipeline()
	for _, env := range envelopes {
		data, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("marshal envelope: %w", err)
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: Stream,
			ID:     "*",
			Values: map[string]interface{}{"data": string(data)},
		})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("publish batch: %w", err)
	}
	return nil
}

func (p *Producer) publishEnvelope(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: Stream,
		ID:     "*",
		Values: map[string]interface{}{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", Stream, err)
	}
	return nil
}
