// Package chain defines the value types and binary layouts of the chain
// events this pipeline ingests.
package chain

import "time"

// SystemAccount is the privileged root account. Its two native actions are
// always decodable via fixed layouts, even before any ABI is published.
const SystemAccount = "eosio"

// Native action names recognized by the decoder's special-case tier.
const (
	ActionNewAccount = "newaccount"
	ActionSetABI     = "setabi"
)

// PermissionLevel identifies an authorizing actor and permission.
type PermissionLevel struct {
	Actor      string `json:"actor" bson:"actor"`
	Permission string `json:"permission" bson:"permission"`
}

// Action is a single operation within a transaction, addressed to an account,
// carrying an opaque binary payload.
type Action struct {
	Account       string            `json:"account"`
	Name          string            `json:"name"`
	Authorization []PermissionLevel `json:"authorization,omitempty"`
	Data          []byte            `json:"data,omitempty"`
}

// TransactionMeta is an immutable accepted-transaction handle as delivered by
// the event source: the transaction id, header metadata, and the ordered
// action lists.
type TransactionMeta struct {
	ID                 string    `json:"id"`
	BlockNum           uint32    `json:"block_num"`
	Expiration         time.Time `json:"expiration,omitempty"`
	RefBlockNum        uint16    `json:"ref_block_num,omitempty"`
	ContextFreeActions []Action  `json:"context_free_actions,omitempty"`
	Actions            []Action  `json:"actions"`
}
