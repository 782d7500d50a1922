package ingest

import (
	"context"
	"encoding/hex"
	"log/slog"

	"github.com/si-chain/eosio-plugin/internal/abi"
	"github.com/si-chain/eosio-plugin/internal/chain"
	"github.com/si-chain/eosio-plugin/internal/metrics"
)

// Decoder turns a raw action into a structured payload, falling through
// tiers on any failure: system special cases, schema-driven generic decode,
// then raw hex.
type Decoder struct {
	accounts AccountStore
	abis     ABIResolver
	logger   *slog.Logger
}

// NewDecoder returns a Decoder over the registry and schema resolver.
func NewDecoder(accounts AccountStore, abis ABIResolver, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{
		accounts: accounts,
		abis:     abis,
		logger:   logger.With("component", "decoder"),
	}
}

// UpdateAccount applies the registry side effect of a system-account action:
// newaccount registers the account, setabi attaches its schema and drops any
// cached copy. Runs for every action regardless of persistence gating, so
// schema state stays correct during fast-forward. Failures are logged, never
// propagated.
func (d *Decoder) UpdateAccount(ctx context.Context, act chain.Action) {
	if act.Account != chain.SystemAccount {
		return
	}
	switch act.Name {
	case chain.ActionNewAccount:
		na, err := chain.UnpackNewAccount(act.Data)
		if err != nil {
			d.logger.Info("unable to unpack newaccount", "error", err)
			return
		}
		if err := d.accounts.EnsureAccount(ctx, na.Name); err != nil {
			d.logger.Error("unable to register account", "account", na.Name, "error", err)
		}
	case chain.ActionSetABI:
		sa, err := chain.UnpackSetABI(act.Data)
		if err != nil {
			d.logger.Info("unable to unpack setabi", "error", err)
			return
		}
		if err := d.accounts.AttachABI(ctx, sa.Account, sa.ABI); err != nil {
			d.logger.Error("unable to attach abi", "account", sa.Account, "error", err)
			return
		}
		d.abis.Invalidate(sa.Account)
	}
}

// DecodePayload runs the decode tiers for one action. It returns either a
// structured payload or the raw hex fallback; exactly one is non-zero.
func (d *Decoder) DecodePayload(ctx context.Context, act chain.Action) (data any, hexData string) {
	if v, ok := d.decodeSystem(act); ok {
		return v, ""
	}
	if v, ok := d.decodeGeneric(ctx, act); ok {
		return v, ""
	}
	metrics.DecodeFallbacks.Inc()
	return nil, hex.EncodeToString(act.Data)
}

// decodeSystem is the special-case tier: the two native system actions are
// always readable via their fixed layouts, even before any ABI exists.
func (d *Decoder) decodeSystem(act chain.Action) (any, bool) {
	if act.Account != chain.SystemAccount {
		return nil, false
	}
	switch act.Name {
	case chain.ActionNewAccount:
		na, err := chain.UnpackNewAccount(act.Data)
		if err != nil {
			d.logger.Info("unable to decode newaccount payload", "error", err)
			return nil, false
		}
		return na, true
	case chain.ActionSetABI:
		sa, err := chain.UnpackSetABI(act.Data)
		if err != nil {
			d.logger.Info("unable to decode setabi payload", "error", err)
			return nil, false
		}
		data := map[string]any{"account": sa.Account}
		if def, err := abi.Parse(sa.ABI); err == nil {
			data["abi_def"] = def
		} else {
			// Embedded schema undecodable: keep the action, omit the
			// rendered schema.
			d.logger.Info("unable to render embedded abi", "account", sa.Account, "error", err)
		}
		return data, true
	}
	return nil, false
}

// decodeGeneric is the schema-driven tier: resolve the acting account's ABI
// and interpret the payload as the type registered for the action name.
func (d *Decoder) decodeGeneric(ctx context.Context, act chain.Action) (any, bool) {
	def, err := d.abis.Resolve(ctx, act.Account)
	if err != nil {
		d.logger.Error("abi resolve failed", "account", act.Account, "error", err)
		return nil, false
	}
	if def == nil {
		return nil, false
	}
	v, err := abi.DecodeAction(ctx, def, act.Name, act.Data, d.resolver)
	if err != nil {
		d.logger.Debug("unable to decode action data",
			"account", act.Account,
			"action", act.Name,
			"error", err,
		)
		return nil, false
	}
	return v, true
}

// resolver adapts the cache for transitive cross-account decoding.
func (d *Decoder) resolver(ctx context.Context, account string) (*abi.ABI, error) {
	return d.abis.Resolve(ctx, account)
}
