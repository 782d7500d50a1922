package store

import (
	"context"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/si-chain/eosio-plugin/internal/chain"
	platformmongo "github.com/si-chain/eosio-plugin/internal/platform/mongo"
)

// newTestStore connects to a local document store and starts from empty
// collections. Skips when no store is reachable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	cfg := platformmongo.DefaultConfig()
	if uri := os.Getenv("MONGODB_URI"); uri != "" {
		cfg.URI = uri
	}
	cfg.Database = "FilterTest"

	client, err := platformmongo.Connect(ctx, cfg)
	if err != nil {
		t.Skipf("Cannot connect to document store: %v", err)
	}
	t.Cleanup(func() { _ = client.Close(context.Background()) })

	st := New(client, nil)
	if err := st.Wipe(ctx); err != nil {
		t.Fatalf("Wipe failed: %v", err)
	}
	return st
}

func validABIJSON() []byte {
	return []byte(`{
		"version": "v1.0",
		"structs": [{"name": "transfer", "fields": [{"name": "from", "type": "name"}]}],
		"actions": [{"name": "transfer", "type": "transfer"}]
	}`)
}

func TestEnsureAccountIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.EnsureAccount(ctx, "alice"); err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if err := st.EnsureAccount(ctx, "alice"); err != nil {
		t.Fatalf("Second EnsureAccount failed: %v", err)
	}

	n, err := st.CountAccounts(ctx)
	if err != nil {
		t.Fatalf("CountAccounts failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected exactly one account record, got %d", n)
	}

	rec, err := st.findAccount(ctx, "alice")
	if err != nil {
		t.Fatalf("findAccount failed: %v", err)
	}
	if rec == nil || rec.Name != "alice" {
		t.Fatalf("Account record missing or wrong: %+v", rec)
	}
	if rec.CreatedAt == 0 {
		t.Error("Expected a creation timestamp")
	}
}

func TestSeedSystemAccount(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.SeedSystemAccount(ctx); err != nil {
		t.Fatalf("SeedSystemAccount failed: %v", err)
	}
	rec, err := st.findAccount(ctx, chain.SystemAccount)
	if err != nil {
		t.Fatalf("findAccount failed: %v", err)
	}
	if rec == nil {
		t.Fatal("System account not seeded on an empty store")
	}

	// Seeding again must not add a second record.
	if err := st.SeedSystemAccount(ctx); err != nil {
		t.Fatalf("Second SeedSystemAccount failed: %v", err)
	}
	n, err := st.CountAccounts(ctx)
	if err != nil {
		t.Fatalf("CountAccounts failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected one account after reseeding, got %d", n)
	}
}

func TestSeedSystemAccountSkipsNonEmptyStore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.EnsureAccount(ctx, "alice"); err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if err := st.SeedSystemAccount(ctx); err != nil {
		t.Fatalf("SeedSystemAccount failed: %v", err)
	}

	// The check is any-account, not system-account presence.
	rec, err := st.findAccount(ctx, chain.SystemAccount)
	if err != nil {
		t.Fatalf("findAccount failed: %v", err)
	}
	if rec != nil {
		t.Error("Seed must be a no-op once any account exists")
	}
}

func TestAttachABI(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// An undecodable blob is skipped without creating the account.
	if err := st.AttachABI(ctx, "token", []byte("{not a schema")); err != nil {
		t.Fatalf("AttachABI with bad blob failed: %v", err)
	}
	rec, err := st.findAccount(ctx, "token")
	if err != nil {
		t.Fatalf("findAccount failed: %v", err)
	}
	if rec != nil {
		t.Fatal("Undecodable blob must not create the account")
	}

	// A valid blob creates the account lazily and stores the schema.
	if err := st.AttachABI(ctx, "token", validABIJSON()); err != nil {
		t.Fatalf("AttachABI failed: %v", err)
	}
	def, err := st.LookupABI(ctx, "token")
	if err != nil {
		t.Fatalf("LookupABI failed: %v", err)
	}
	if def == nil {
		t.Fatal("Schema not found after attach")
	}
	if def.ActionType("transfer") != "transfer" {
		t.Errorf("Stored schema lost its action mapping: %+v", def)
	}
}

func TestLookupABIAbsentAndMalformed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Unknown account.
	if def, err := st.LookupABI(ctx, "ghost"); err != nil || def != nil {
		t.Fatalf("LookupABI on unknown account: def=%v err=%v", def, err)
	}

	// Account without a schema.
	if err := st.EnsureAccount(ctx, "alice"); err != nil {
		t.Fatalf("EnsureAccount failed: %v", err)
	}
	if def, err := st.LookupABI(ctx, "alice"); err != nil || def != nil {
		t.Fatalf("LookupABI without schema: def=%v err=%v", def, err)
	}

	// A stored schema that no longer decodes is treated as absent, and the
	// account record itself stays readable.
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "abi", Value: bson.D{{Key: "version", Value: int32(7)}}},
	}}}
	if _, err := st.accounts.UpdateOne(ctx, bson.D{{Key: "name", Value: "alice"}}, update); err != nil {
		t.Fatalf("Seeding malformed schema failed: %v", err)
	}
	def, err := st.LookupABI(ctx, "alice")
	if err != nil {
		t.Fatalf("LookupABI on malformed schema returned error: %v", err)
	}
	if def != nil {
		t.Errorf("Malformed stored schema must read as absent, got %+v", def)
	}
	rec, err := st.findAccount(ctx, "alice")
	if err != nil || rec == nil {
		t.Fatalf("Identity lookup must survive a malformed schema: rec=%v err=%v", rec, err)
	}
}
