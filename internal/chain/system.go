package chain

import (
	"encoding/hex"
	"fmt"
)

// KeyWeight is a weighted public key inside an authority. The key is kept in
// its packed wire form, rendered as hex.
type KeyWeight struct {
	Key    string `json:"key" bson:"key"`
	Weight uint16 `json:"weight" bson:"weight"`
}

// PermissionLevelWeight is a weighted account permission inside an authority.
type PermissionLevelWeight struct {
	Permission PermissionLevel `json:"permission" bson:"permission"`
	Weight     uint16          `json:"weight" bson:"weight"`
}

// WaitWeight is a weighted time delay inside an authority.
type WaitWeight struct {
	WaitSec uint32 `json:"wait_sec" bson:"wait_sec"`
	Weight  uint16 `json:"weight" bson:"weight"`
}

// Authority is the permission structure attached to a new account.
type Authority struct {
	Threshold uint32                  `json:"threshold" bson:"threshold"`
	Keys      []KeyWeight             `json:"keys" bson:"keys"`
	Accounts  []PermissionLevelWeight `json:"accounts" bson:"accounts"`
	Waits     []WaitWeight            `json:"waits" bson:"waits"`
}

// NewAccount is the decoded payload of the system newaccount action.
type NewAccount struct {
	Creator string    `json:"creator" bson:"creator"`
	Name    string    `json:"name" bson:"name"`
	Owner   Authority `json:"owner" bson:"owner"`
	Active  Authority `json:"active" bson:"active"`
}

// SetABI is the decoded payload of the system setabi action. ABI holds the
// raw embedded schema bytes, still packed.
type SetABI struct {
	Account string
	ABI     []byte
}

// packedKeyLen is one type byte plus 33 bytes of key material.
const packedKeyLen = 34

func unpackAuthority(r *Reader) (Authority, error) {
	var auth Authority
	var err error
	if auth.Threshold, err = r.Uint32(); err != nil {
		return auth, fmt.Errorf("threshold: %w", err)
	}

	nkeys, err := r.Varuint32()
	if err != nil {
		return auth, fmt.Errorf("key count: %w", err)
	}
	auth.Keys = make([]KeyWeight, 0, nkeys)
	for i := uint32(0); i < nkeys; i++ {
		raw, err := r.take(packedKeyLen)
		if err != nil {
			return auth, fmt.Errorf("key %d: %w", i, err)
		}
		weight, err := r.Uint16()
		if err != nil {
			return auth, fmt.Errorf("key weight %d: %w", i, err)
		}
		auth.Keys = append(auth.Keys, KeyWeight{Key: hex.EncodeToString(raw), Weight: weight})
	}

	naccts, err := r.Varuint32()
	if err != nil {
		return auth, fmt.Errorf("account count: %w", err)
	}
	auth.Accounts = make([]PermissionLevelWeight, 0, naccts)
	for i := uint32(0); i < naccts; i++ {
		actor, err := r.Name()
		if err != nil {
			return auth, fmt.Errorf("account actor %d: %w", i, err)
		}
		perm, err := r.Name()
		if err != nil {
			return auth, fmt.Errorf("account permission %d: %w", i, err)
		}
		weight, err := r.Uint16()
		if err != nil {
			return auth, fmt.Errorf("account weight %d: %w", i, err)
		}
		auth.Accounts = append(auth.Accounts, PermissionLevelWeight{
			Permission: PermissionLevel{Actor: actor, Permission: perm},
			Weight:     weight,
		})
	}

	nwaits, err := r.Varuint32()
	if err != nil {
		return auth, fmt.Errorf("wait count: %w", err)
	}
	auth.Waits = make([]WaitWeight, 0, nwaits)
	for i := uint32(0); i < nwaits; i++ {
		sec, err := r.Uint32()
		if err != nil {
			return auth, fmt.Errorf("wait sec %d: %w", i, err)
		}
		weight, err := r.Uint16()
		if err != nil {
			return auth, fmt.Errorf("wait weight %d: %w", i, err)
		}
		auth.Waits = append(auth.Waits, WaitWeight{WaitSec: sec, Weight: weight})
	}

	return auth, nil
}

// UnpackNewAccount decodes a newaccount payload using its fixed layout.
func UnpackNewAccount(data []byte) (*NewAccount, error) {
	r := NewReader(data)
	var na NewAccount
	var err error
	if na.Creator, err = r.Name(); err != nil {
		return nil, fmt.Errorf("creator: %w", err)
	}
	if na.Name, err = r.Name(); err != nil {
		return nil, fmt.Errorf("name: %w", err)
	}
	if na.Owner, err = unpackAuthority(r); err != nil {
		return nil, fmt.Errorf("owner authority: %w", err)
	}
	if na.Active, err = unpackAuthority(r); err != nil {
		return nil, fmt.Errorf("active authority: %w", err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("newaccount: %d trailing bytes", r.Remaining())
	}
	return &na, nil
}

// UnpackSetABI decodes a setabi payload using its fixed layout.
func UnpackSetABI(data []byte) (*SetABI, error) {
	r := NewReader(data)
	var sa SetABI
	var err error
	if sa.Account, err = r.Name(); err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	if sa.ABI, err = r.Bytes(); err != nil {
		return nil, fmt.Errorf("abi blob: %w", err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("setabi: %d trailing bytes", r.Remaining())
	}
	return &sa, nil
}
