// Package mongo provides the document-store client wrapper for the pipeline.
package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultDatabase is used when the connection URI names no database.
const DefaultDatabase = "Filter"

// Config holds document-store connection configuration.
type Config struct {
	// URI is the MongoDB connection string. Empty means the pipeline is
	// disabled.
	URI string

	// Database overrides the database named in the URI.
	Database string

	// ConnectTimeout bounds the initial connect and ping.
	ConnectTimeout time.Duration
}

// DefaultConfig returns sensible defaults for local development.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://127.0.0.1:27017/Filter",
		ConnectTimeout: 10 * time.Second,
	}
}

// DatabaseName resolves the database to use: the explicit override, the URI
// path component, or DefaultDatabase.
func (c Config) DatabaseName() string {
	if c.Database != "" {
		return c.Database
	}
	if name := databaseFromURI(c.URI); name != "" {
		return name
	}
	return DefaultDatabase
}

// databaseFromURI extracts the database path component of a mongodb:// URI.
func databaseFromURI(uri string) string {
	rest := uri
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[i+1:]
	} else {
		return ""
	}
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// Client wraps a connected mongo client and its target database.
type Client struct {
	cli *mongo.Client
	db  *mongo.Database
	cfg Config
}

// Connect establishes and ping-verifies a connection to the document store.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConfig().ConnectTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	return &Client{
		cli: cli,
		db:  cli.Database(cfg.DatabaseName()),
		cfg: cfg,
	}, nil
}

// Collection returns a handle to a named collection in the target database.
func (c *Client) Collection(name string) *mongo.Collection {
	return c.db.Collection(name)
}

// Database returns the target database name.
func (c *Client) Database() string {
	return c.db.Name()
}

// Health checks store connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.cli.Ping(ctx, readpref.Primary())
}

// Close disconnects from the store.
func (c *Client) Close(ctx context.Context) error {
	return c.cli.Disconnect(ctx)
}
