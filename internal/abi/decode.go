package abi

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/si-chain/eosio-plugin/internal/chain"
)

// Resolver looks up another account's ABI so cross-account payloads (a
// contract embedding another contract's action) decode transitively. It
// returns (nil, nil) when no schema is available.
type Resolver func(ctx context.Context, account string) (*ABI, error)

// DecodeAction interprets data as the struct registered for actionName in
// def. Any failure (unknown type, corrupt bytes, trailing bytes) is returned
// as an error for the caller's fallback tier.
func DecodeAction(ctx context.Context, def *ABI, actionName string, data []byte, resolver Resolver) (map[string]any, error) {
	typeName := def.ActionType(actionName)
	if typeName == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionName)
	}
	r := chain.NewReader(data)
	v, err := decodeType(ctx, def, typeName, r, resolver)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("action %s: %d trailing bytes", actionName, r.Remaining())
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("action %s: payload type %s is not a struct", actionName, typeName)
	}
	return obj, nil
}

func decodeType(ctx context.Context, def *ABI, typeName string, r *chain.Reader, resolver Resolver) (any, error) {
	typeName, err := def.ResolveType(typeName)
	if err != nil {
		return nil, err
	}

	if isArray(typeName) {
		elem := typeName[:len(typeName)-2]
		n, err := r.Varuint32()
		if err != nil {
			return nil, fmt.Errorf("array length of %s: %w", elem, err)
		}
		out := make([]any, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := decodeType(ctx, def, elem, r, resolver)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", elem, i, err)
			}
			out = append(out, v)
		}
		return out, nil
	}

	if isOptional(typeName) {
		elem := typeName[:len(typeName)-1]
		present, err := r.Uint8()
		if err != nil {
			return nil, fmt.Errorf("optional flag of %s: %w", elem, err)
		}
		if present == 0 {
			return nil, nil
		}
		return decodeType(ctx, def, elem, r, resolver)
	}

	switch typeName {
	case "bool":
		v, err := r.Uint8()
		return v != 0, err
	case "uint8":
		v, err := r.Uint8()
		return uint64(v), err
	case "uint16":
		v, err := r.Uint16()
		return uint64(v), err
	case "uint32", "varuint32":
		if typeName == "varuint32" {
			v, err := r.Varuint32()
			return uint64(v), err
		}
		v, err := r.Uint32()
		return uint64(v), err
	case "uint64":
		return r.Uint64()
	case "int8":
		v, err := r.Uint8()
		return int64(int8(v)), err
	case "int16":
		v, err := r.Uint16()
		return int64(int16(v)), err
	case "int32":
		v, err := r.Uint32()
		return int64(int32(v)), err
	case "int64":
		v, err := r.Uint64()
		return int64(v), err
	case "float64":
		return r.Float64()
	case "string":
		b, err := r.Bytes()
		return string(b), err
	case "bytes":
		b, err := r.Bytes()
		return hex.EncodeToString(b), err
	case "name", "account_name", "action_name", "permission_name":
		return r.Name()
	case "checksum256":
		b := make([]byte, 32)
		for i := range b {
			v, err := r.Uint8()
			if err != nil {
				return nil, err
			}
			b[i] = v
		}
		return hex.EncodeToString(b), nil
	case "time_point_sec":
		v, err := r.Uint32()
		if err != nil {
			return nil, err
		}
		return time.Unix(int64(v), 0).UTC().Format("2006-01-02T15:04:05"), nil
	case "permission_level":
		actor, err := r.Name()
		if err != nil {
			return nil, err
		}
		perm, err := r.Name()
		if err != nil {
			return nil, err
		}
		return map[string]any{"actor": actor, "permission": perm}, nil
	case "action":
		return decodeEmbeddedAction(ctx, r, resolver)
	}

	if sd := def.structDef(typeName); sd != nil {
		return decodeStruct(ctx, def, sd, r, resolver)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownType, typeName)
}

func decodeStruct(ctx context.Context, def *ABI, sd *StructDef, r *chain.Reader, resolver Resolver) (map[string]any, error) {
	out := make(map[string]any)
	if sd.Base != "" {
		base := def.structDef(sd.Base)
		if base == nil {
			return nil, fmt.Errorf("%w: base %s of %s", ErrUnknownType, sd.Base, sd.Name)
		}
		fields, err := decodeStruct(ctx, def, base, r, resolver)
		if err != nil {
			return nil, err
		}
		for k, v := range fields {
			out[k] = v
		}
	}
	for _, f := range sd.Fields {
		v, err := decodeType(ctx, def, f.Type, r, resolver)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", sd.Name, f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

// decodeEmbeddedAction decodes a nested action value, resolving the target
// account's ABI through the resolver to render the inner payload. Without a
// resolvable schema the inner payload stays hex.
func decodeEmbeddedAction(ctx context.Context, r *chain.Reader, resolver Resolver) (map[string]any, error) {
	account, err := r.Name()
	if err != nil {
		return nil, err
	}
	name, err := r.Name()
	if err != nil {
		return nil, err
	}
	nauth, err := r.Varuint32()
	if err != nil {
		return nil, err
	}
	auths := make([]any, 0, nauth)
	for i := uint32(0); i < nauth; i++ {
		actor, err := r.Name()
		if err != nil {
			return nil, err
		}
		perm, err := r.Name()
		if err != nil {
			return nil, err
		}
		auths = append(auths, map[string]any{"actor": actor, "permission": perm})
	}
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}

	out := map[string]any{
		"account":       account,
		"name":          name,
		"authorization": auths,
	}
	if resolver != nil {
		if inner, err := resolver(ctx, account); err == nil && inner != nil {
			if decoded, err := DecodeAction(ctx, inner, name, data, resolver); err == nil {
				out["data"] = decoded
				return out, nil
			}
		}
	}
	out["hex_data"] = hex.EncodeToString(data)
	return out, nil
}
