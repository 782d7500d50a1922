// Command filtersink ingests accepted-transaction events from the chain
// node's event stream, decodes each action against per-account ABIs, and
// persists filter-matched action documents to MongoDB.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/si-chain/eosio-plugin/internal/cache"
	"github.com/si-chain/eosio-plugin/internal/config"
	"github.com/si-chain/eosio-plugin/internal/ingest"
	"github.com/si-chain/eosio-plugin/internal/metrics"
	platformmongo "github.com/si-chain/eosio-plugin/internal/platform/mongo"
	"github.com/si-chain/eosio-plugin/internal/source"
	"github.com/si-chain/eosio-plugin/internal/store"
)

// stringList is a repeatable flag value.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var filterContracts stringList
	configPath := flag.String("config", getEnv("FILTERSINK_CONFIG", ""), "Optional YAML config file")
	mongoURI := flag.String("mongodb-uri", getEnv("MONGODB_URI", ""), "MongoDB connection string; if not specified the pipeline is disabled")
	database := flag.String("database", getEnv("MONGODB_DATABASE", ""), "Database name override (default from URI, else Filter)")
	queueSize := flag.Int("queue-size", getEnvInt("QUEUE_SIZE", 256), "Target queue size between the event source and the consumer")
	startBlock := flag.Uint("start-block", uint(getEnvInt("START_BLOCK", 0)), "No data pushed to the store until this block is reached (0 = immediately)")
	replay := flag.Bool("replay", false, "Destructive wipe-and-reingest; requires -wipe")
	wipe := flag.Bool("wipe", false, "Required with -replay to confirm wiping all collections")
	natsURL := flag.String("nats-url", getEnv("NATS_URL", "nats://localhost:4222"), "NATS server URL")
	natsStream := flag.String("nats-stream", getEnv("NATS_STREAM", "ACCEPTED_TX"), "JetStream stream name")
	natsSubject := flag.String("nats-subject", getEnv("NATS_SUBJECT", "chain.accepted.tx"), "Accepted-transaction subject")
	natsDurable := flag.String("nats-durable", getEnv("NATS_DURABLE", "filtersink"), "Durable consumer name")
	redisAddr := flag.String("redis-addr", getEnv("REDIS_ADDR", ""), "Optional Redis address for the shared ABI cache tier")
	metricsAddr := flag.String("metrics-addr", getEnv("METRICS_ADDR", ""), "Optional prometheus listener address")
	logLevel := flag.String("log-level", getEnv("LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Var(&filterContracts, "filter-contract", "Persist actions of this contract account (repeatable)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Precedence: explicit flags and environment variables override the
	// file, which overrides the built-in defaults.
	setFlags := explicitOptions(flag.CommandLine, os.Getenv)
	if setFlags["mongodb-uri"] || cfg.MongoURI == "" {
		cfg.MongoURI = *mongoURI
	}
	if setFlags["database"] {
		cfg.Database = *database
	}
	if setFlags["queue-size"] || cfg.QueueSize == 0 {
		cfg.QueueSize = *queueSize
	}
	if setFlags["start-block"] {
		cfg.StartBlock = uint32(*startBlock)
	}
	if setFlags["nats-url"] {
		cfg.NATSURL = *natsURL
	}
	if setFlags["nats-stream"] {
		cfg.NATSStream = *natsStream
	}
	if setFlags["nats-subject"] {
		cfg.NATSSubject = *natsSubject
	}
	if setFlags["nats-durable"] {
		cfg.NATSDurable = *natsDurable
	}
	if setFlags["redis-addr"] {
		cfg.RedisAddr = *redisAddr
	}
	if setFlags["metrics-addr"] {
		cfg.MetricsAddr = *metricsAddr
	}
	if setFlags["log-level"] {
		cfg.LogLevel = *logLevel
	}
	if len(filterContracts) > 0 {
		cfg.FilterContracts = filterContracts
	}
	cfg.Replay = cfg.Replay || *replay
	cfg.Wipe = cfg.Wipe || *wipe

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if !cfg.Enabled() {
		logger.Warn("filtersink configured, but no mongodb uri specified")
		logger.Warn("filtersink disabled")
		return
	}

	logger.Info("initializing filtersink",
		"queue_size", cfg.QueueSize,
		"start_block", cfg.StartBlock,
		"filter_contracts", cfg.FilterContracts,
	)
	for _, c := range cfg.FilterContracts {
		logger.Info("filter contract", "account", c)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoCfg := platformmongo.DefaultConfig()
	mongoCfg.URI = cfg.MongoURI
	mongoCfg.Database = cfg.Database
	logger.Info("connecting to document store", "uri", cfg.MongoURI)
	client, err := platformmongo.Connect(ctx, mongoCfg)
	if err != nil {
		logger.Error("failed to connect to document store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Error("error closing document store", "error", err)
		}
	}()

	st := store.New(client, logger)

	if cfg.Replay && cfg.Wipe {
		logger.Info("wiping document store on startup")
		if err := st.Wipe(ctx); err != nil {
			logger.Error("wipe failed", "error", err)
			os.Exit(1)
		}
	}

	if err := st.SeedSystemAccount(ctx); err != nil {
		logger.Error("failed to seed system account", "error", err)
		os.Exit(1)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, abi cache runs memory-only", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
		}
	}
	abiCache := cache.New(st, rdb, logger)

	pipeline := ingest.New(ingest.Config{
		QueueTarget:     cfg.QueueSize,
		StartBlock:      cfg.StartBlock,
		FilterContracts: cfg.FilterContracts,
	}, st, abiCache, st, logger)

	srcCfg := source.DefaultConfig()
	srcCfg.URL = cfg.NATSURL
	srcCfg.Stream = cfg.NATSStream
	srcCfg.Subject = cfg.NATSSubject
	srcCfg.Durable = cfg.NATSDurable

	connName := fmt.Sprintf("filtersink-%s", uuid.NewString()[:8])
	src, err := source.New(ctx, srcCfg, connName, pipeline, logger)
	if err != nil {
		logger.Error("failed to initialize event source", "error", err)
		os.Exit(1)
	}

	// Replay the backlog inline so history is durable before the consumer
	// worker starts.
	if err := src.CatchUp(ctx); err != nil {
		logger.Error("catch-up failed", "error", err)
		src.Stop()
		os.Exit(1)
	}

	pipeline.Start()

	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() { runErr <- src.Run(ctx) }()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-runErr:
		if err != nil {
			logger.Error("event source error", "error", err)
		}
	}

	logger.Info("filtersink shutdown in progress, draining may take a moment")
	cancel()
	if err := src.Stop(); err != nil {
		logger.Error("error stopping event source", "error", err)
	}
	pipeline.Shutdown()
	logger.Info("filtersink shutdown complete")
}

// envOptions maps flag names to the environment variables that can supply
// their values.
var envOptions = map[string]string{
	"config":       "FILTERSINK_CONFIG",
	"mongodb-uri":  "MONGODB_URI",
	"database":     "MONGODB_DATABASE",
	"queue-size":   "QUEUE_SIZE",
	"start-block":  "START_BLOCK",
	"nats-url":     "NATS_URL",
	"nats-stream":  "NATS_STREAM",
	"nats-subject": "NATS_SUBJECT",
	"nats-durable": "NATS_DURABLE",
	"redis-addr":   "REDIS_ADDR",
	"metrics-addr": "METRICS_ADDR",
	"log-level":    "LOG_LEVEL",
}

// explicitOptions returns the option names the operator provided, whether as
// a command-line flag or an environment variable. Environment values arrive
// as flag defaults, so flag.Visit alone would miss them and a config file
// would silently win over the environment.
func explicitOptions(fs *flag.FlagSet, getenv func(string) string) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	for name, env := range envOptions {
		if getenv(env) != "" {
			set[name] = true
		}
	}
	return set
}

// newLogger builds the process logger.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// getEnv returns environment variable value or default.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns environment variable as int or default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}
