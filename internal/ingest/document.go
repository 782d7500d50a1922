package ingest

import (
	"context"

	"github.com/si-chain/eosio-plugin/internal/abi"
	"github.com/si-chain/eosio-plugin/internal/chain"
)

// AuthDocument is one actor/permission pair of an action's authorization.
type AuthDocument struct {
	Actor      string `bson:"actor"`
	Permission string `bson:"permission"`
}

// ActionDocument is the persisted shape of one decoded action. Exactly one
// of Data or HexData is set: Data when a decode tier succeeded, HexData as
// the raw fallback.
type ActionDocument struct {
	ActionNum     int32          `bson:"action_num"`
	TrxID         string         `bson:"trx_id"`
	CFA           bool           `bson:"cfa"`
	Account       string         `bson:"account"`
	Name          string         `bson:"name"`
	Authorization []AuthDocument `bson:"authorization"`
	Data          any            `bson:"data,omitempty"`
	HexData       string         `bson:"hex_data,omitempty"`
}

// authDocuments converts an action's authorization list.
func authDocuments(auths []chain.PermissionLevel) []AuthDocument {
	out := make([]AuthDocument, 0, len(auths))
	for _, a := range auths {
		out = append(out, AuthDocument{Actor: a.Actor, Permission: a.Permission})
	}
	return out
}

// AccountStore is the registry of account records in the document store.
type AccountStore interface {
	// EnsureAccount inserts an account record if absent. Idempotent.
	EnsureAccount(ctx context.Context, name string) error

	// AttachABI unpacks raw schema bytes and attaches them to the named
	// account, creating it if missing. An undecodable schema is skipped
	// silently (contracts are not required to publish one).
	AttachABI(ctx context.Context, name string, raw []byte) error
}

// ABIResolver resolves the most recently known schema for an account.
// Resolve returns (nil, nil) when no schema is available; Invalidate drops
// any cached schema after a schema-set action is observed.
type ABIResolver interface {
	Resolve(ctx context.Context, account string) (*abi.ABI, error)
	Invalidate(account string)
}

// ActionWriter persists a batch of filtered action documents as one
// unordered bulk operation.
type ActionWriter interface {
	BulkInsertActions(ctx context.Context, docs []ActionDocument) error
}
