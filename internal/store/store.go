// Package store implements the account registry and filtered-action sink on
// top of the document store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/si-chain/eosio-plugin/internal/abi"
	"github.com/si-chain/eosio-plugin/internal/chain"
	"github.com/si-chain/eosio-plugin/internal/ingest"
	platformmongo "github.com/si-chain/eosio-plugin/internal/platform/mongo"
)

// Collection names.
const (
	AccountsCollection = "accounts"
	FilterCollection   = "filter"
)

// Store provides registry and sink operations over the two collections.
type Store struct {
	accounts *mongo.Collection
	filter   *mongo.Collection
	logger   *slog.Logger
}

// New returns a Store over the client's accounts and filter collections.
func New(client *platformmongo.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		accounts: client.Collection(AccountsCollection),
		filter:   client.Collection(FilterCollection),
		logger:   logger.With("component", "store"),
	}
}

// accountRecord is the stored identity of an account. The abi field is read
// separately as raw bson so a malformed schema cannot fail identity lookups.
type accountRecord struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name"`
	CreatedAt primitive.DateTime `bson:"createdAt"`
	UpdatedAt primitive.DateTime `bson:"updatedAt,omitempty"`
}

func (s *Store) findAccount(ctx context.Context, name string) (*accountRecord, error) {
	var rec accountRecord
	err := s.accounts.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", name, err)
	}
	return &rec, nil
}

func (s *Store) insertAccount(ctx context.Context, name string) error {
	_, err := s.accounts.InsertOne(ctx, bson.D{
		{Key: "name", Value: name},
		{Key: "createdAt", Value: primitive.NewDateTimeFromTime(time.Now())},
	})
	if err != nil {
		return fmt.Errorf("insert account %s: %w", name, err)
	}
	return nil
}

// EnsureAccount inserts an account record with a creation timestamp if one
// does not already exist. Races on concurrent inserts are tolerated.
func (s *Store) EnsureAccount(ctx context.Context, name string) error {
	rec, err := s.findAccount(ctx, name)
	if err != nil {
		return err
	}
	if rec != nil {
		return nil
	}
	if err := s.insertAccount(ctx, name); err != nil {
		s.logger.Error("failed to insert account", "account", name, "error", err)
		return err
	}
	return nil
}

// AttachABI unpacks a raw schema blob and attaches it to the named account.
// An undecodable blob is skipped without touching the account record. The
// account is created lazily when the schema references an unknown account.
func (s *Store) AttachABI(ctx context.Context, name string, raw []byte) error {
	def, err := abi.Parse(raw)
	if err != nil {
		// Contracts are not required to publish a decodable schema.
		return nil
	}

	rec, err := s.findAccount(ctx, name)
	if err != nil {
		return err
	}
	if rec == nil {
		if err := s.insertAccount(ctx, name); err != nil {
			s.logger.Error("failed to insert account", "account", name, "error", err)
			return err
		}
		if rec, err = s.findAccount(ctx, name); err != nil || rec == nil {
			return fmt.Errorf("account %s missing after insert: %w", name, err)
		}
	}

	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "abi", Value: def},
		{Key: "updatedAt", Value: primitive.NewDateTimeFromTime(time.Now())},
	}}}
	if _, err := s.accounts.UpdateOne(ctx, bson.D{{Key: "_id", Value: rec.ID}}, update); err != nil {
		s.logger.Error("failed to update account abi", "account", name, "error", err)
		return fmt.Errorf("update account %s: %w", name, err)
	}
	return nil
}

// SeedSystemAccount inserts the privileged system account once, on a fresh
// store. Idempotent: it checks whether any account exists at all.
func (s *Store) SeedSystemAccount(ctx context.Context) error {
	n, err := s.accounts.CountDocuments(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("count accounts: %w", err)
	}
	if n > 0 {
		return nil
	}
	if err := s.insertAccount(ctx, chain.SystemAccount); err != nil {
		s.logger.Error("failed to insert account", "account", chain.SystemAccount, "error", err)
		return err
	}
	return nil
}

// LookupABI returns the stored schema for an account, or nil when the
// account is unknown or has none. A malformed stored schema is logged and
// treated as absent; it is not purged or fixed.
func (s *Store) LookupABI(ctx context.Context, name string) (*abi.ABI, error) {
	var rec struct {
		ABI bson.Raw `bson:"abi,omitempty"`
	}
	err := s.accounts.FindOne(ctx, bson.D{{Key: "name", Value: name}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup abi for %s: %w", name, err)
	}
	if len(rec.ABI) == 0 {
		return nil, nil
	}
	var def abi.ABI
	if err := bson.Unmarshal(rec.ABI, &def); err != nil {
		s.logger.Info("unable to decode stored abi", "account", name, "error", err)
		return nil, nil
	}
	return &def, nil
}

// BulkInsertActions writes the filtered action documents for one transaction
// as a single unordered bulk insert. One document's failure does not block
// the others.
func (s *Store) BulkInsertActions(ctx context.Context, docs []ingest.ActionDocument) error {
	if len(docs) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(docs))
	for i := range docs {
		models = append(models, mongo.NewInsertOneModel().SetDocument(docs[i]))
	}
	opts := options.BulkWrite().SetOrdered(false)
	if _, err := s.filter.BulkWrite(ctx, models, opts); err != nil {
		return fmt.Errorf("bulk insert %d actions: %w", len(docs), err)
	}
	return nil
}

// CountAccounts reports the number of account records.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	return s.accounts.CountDocuments(ctx, bson.D{})
}

// Wipe drops both collections. Only invoked from the explicit
// wipe-and-reinitialize path, gated behind the replay confirmation flag.
func (s *Store) Wipe(ctx context.Context) error {
	s.logger.Info("wiping document store collections")
	if err := s.filter.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", FilterCollection, err)
	}
	if err := s.accounts.Drop(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", AccountsCollection, err)
	}
	return nil
}
