package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Defaults for the accepted-transaction stream.
const (
	DefaultStreamName = "ACCEPTED_TX"
	DefaultSubject    = "chain.accepted.tx"
)

// StreamConfig defines the accepted-transaction stream.
type StreamConfig struct {
	Name        string
	Subjects    []string
	MaxAge      time.Duration // Maximum message age (0 = unlimited)
	MaxBytes    int64         // Maximum stream size in bytes (0 = unlimited)
	Replicas    int
	Description string
}

// DefaultStreamConfig returns the stream configuration the chain node (or a
// bridge) publishes accepted transactions to.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Name:        DefaultStreamName,
		Subjects:    []string{DefaultSubject},
		MaxAge:      24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Replicas:    1,
		Description: "Accepted-transaction events from the chain node",
	}
}

// EnsureStream creates or updates the stream. Idempotent.
func EnsureStream(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        cfg.Name,
		Subjects:    cfg.Subjects,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxBytes:    cfg.MaxBytes,
		Replicas:    cfg.Replicas,
		Description: cfg.Description,
		Storage:     jetstream.FileStorage,
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
	}
	return stream, nil
}

// EnsureConsumer creates or updates the ingester's durable consumer.
// MaxAckPending of 1 keeps delivery strictly in chain order, which the
// pipeline's FIFO guarantee depends on.
func EnsureConsumer(ctx context.Context, stream jetstream.Stream, durable string) (jetstream.Consumer, error) {
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durable,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure consumer %s: %w", durable, err)
	}
	return consumer, nil
}
