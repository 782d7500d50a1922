// Package source delivers accepted-transaction events from the chain node's
// JetStream stream into the pipeline, one at a time, in chain order.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/si-chain/eosio-plugin/internal/chain"
	"github.com/si-chain/eosio-plugin/internal/ingest"
	pnats "github.com/si-chain/eosio-plugin/internal/platform/nats"
)

// Config holds event-source configuration.
type Config struct {
	URL          string
	Stream       string
	Subject      string
	Durable      string
	BatchSize    int
	FetchTimeout time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URL:          "nats://localhost:4222",
		Stream:       pnats.DefaultStreamName,
		Subject:      pnats.DefaultSubject,
		Durable:      "filtersink",
		BatchSize:    64,
		FetchTimeout: 5 * time.Second,
	}
}

// Source consumes the accepted-transaction stream and submits each event to
// the pipeline.
type Source struct {
	cfg      Config
	client   *pnats.Client
	consumer jetstream.Consumer
	pipeline *ingest.Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

// New connects to NATS and ensures the stream and the durable consumer.
func New(ctx context.Context, cfg Config, connName string, pipeline *ingest.Pipeline, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}

	natsCfg := pnats.DefaultConfig()
	natsCfg.URL = cfg.URL
	natsCfg.Name = connName

	client, err := pnats.Connect(ctx, natsCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	streamCfg := pnats.DefaultStreamConfig()
	if cfg.Stream != "" {
		streamCfg.Name = cfg.Stream
	}
	if cfg.Subject != "" {
		streamCfg.Subjects = []string{cfg.Subject}
	}

	stream, err := pnats.EnsureStream(ctx, client.JetStream(), streamCfg)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	consumer, err := pnats.EnsureConsumer(ctx, stream, cfg.Durable)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	logger.Info("event source initialized",
		"url", cfg.URL,
		"stream", streamCfg.Name,
		"durable", cfg.Durable,
	)

	return &Source{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		pipeline: pipeline,
		logger:   logger.With("component", "source"),
		done:     make(chan struct{}),
	}, nil
}

// CatchUp drains the stream backlog before live operation begins. The
// pipeline is still in startup mode, so each Submit processes synchronously
// and replayed history is fully durable when CatchUp returns.
func (s *Source) CatchUp(ctx context.Context) error {
	var replayed int
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		delivered, err := s.fetchAndSubmit(ctx, s.cfg.FetchTimeout)
		if err != nil {
			return fmt.Errorf("catch-up fetch: %w", err)
		}
		if delivered == 0 {
			break
		}
		replayed += delivered
	}
	if replayed > 0 {
		s.logger.Info("catch-up complete", "replayed", replayed)
	}
	return nil
}

// Run is the live fetch loop. It returns when the context is canceled or
// Stop is called.
func (s *Source) Run(ctx context.Context) error {
	s.logger.Info("event source running",
		"batch_size", s.cfg.BatchSize,
		"fetch_timeout", s.cfg.FetchTimeout,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("event source stopping")
			return nil
		case <-s.done:
			s.logger.Info("event source stopped")
			return nil
		default:
			if _, err := s.fetchAndSubmit(ctx, s.cfg.FetchTimeout); err != nil {
				s.logger.Error("fetch error", "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(100 * time.Millisecond):
				}
			}
		}
	}
}

// fetchAndSubmit fetches one batch and submits each decoded transaction to
// the pipeline in order, acking after submission. An empty fetch is not an
// error. Malformed payloads are terminated and logged: with a single-ack
// in-order consumer a nak would redeliver the same message forever and stall
// the stream, so a poison message is dropped and the stream advances.
func (s *Source) fetchAndSubmit(ctx context.Context, maxWait time.Duration) (int, error) {
	msgs, err := s.consumer.Fetch(s.cfg.BatchSize, jetstream.FetchMaxWait(maxWait))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil
		}
		return 0, fmt.Errorf("fetch messages: %w", err)
	}

	delivered := 0
	for msg := range msgs.Messages() {
		var t chain.TransactionMeta
		if err := json.Unmarshal(msg.Data(), &t); err != nil {
			s.logger.Warn("malformed transaction payload",
				"subject", msg.Subject(),
				"error", err,
			)
			if err := msg.Term(); err != nil {
				s.logger.Warn("failed to terminate malformed message", "error", err)
			}
			continue
		}

		s.pipeline.Submit(&t)
		delivered++

		if err := msg.Ack(); err != nil {
			s.logger.Warn("failed to ack message", "trx_id", t.ID, "error", err)
		}
	}

	if err := msgs.Error(); err != nil {
		s.logger.Warn("message iteration error", "error", err)
	}
	return delivered, nil
}

// Stop terminates the live loop and closes the connection. Idempotent.
func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.done)

	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
