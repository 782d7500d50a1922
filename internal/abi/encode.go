package abi

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/si-chain/eosio-plugin/internal/chain"
)

// EncodeAction is the inverse of DecodeAction: it packs a structured value
// back into the binary payload for the struct registered under actionName.
// Embedded actions are packed from their hex_data form only. Used by test
// fixtures and round-trip verification.
func EncodeAction(def *ABI, actionName string, value map[string]any) ([]byte, error) {
	typeName := def.ActionType(actionName)
	if typeName == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, actionName)
	}
	var w chain.Writer
	if err := encodeType(def, typeName, value, &w); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func encodeType(def *ABI, typeName string, value any, w *chain.Writer) error {
	typeName, err := def.ResolveType(typeName)
	if err != nil {
		return err
	}

	if isArray(typeName) {
		elem := typeName[:len(typeName)-2]
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("type %s: expected slice, got %T", typeName, value)
		}
		w.Varuint32(uint32(len(items)))
		for i, item := range items {
			if err := encodeType(def, elem, item, w); err != nil {
				return fmt.Errorf("%s[%d]: %w", elem, i, err)
			}
		}
		return nil
	}

	if isOptional(typeName) {
		elem := typeName[:len(typeName)-1]
		if value == nil {
			w.Uint8(0)
			return nil
		}
		w.Uint8(1)
		return encodeType(def, elem, value, w)
	}

	switch typeName {
	case "bool":
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("bool: got %T", value)
		}
		if b {
			w.Uint8(1)
		} else {
			w.Uint8(0)
		}
		return nil
	case "uint8":
		v, err := asUint(value)
		w.Uint8(uint8(v))
		return err
	case "uint16":
		v, err := asUint(value)
		w.Uint16(uint16(v))
		return err
	case "uint32":
		v, err := asUint(value)
		w.Uint32(uint32(v))
		return err
	case "varuint32":
		v, err := asUint(value)
		w.Varuint32(uint32(v))
		return err
	case "uint64":
		v, err := asUint(value)
		w.Uint64(v)
		return err
	case "int8":
		v, err := asInt(value)
		w.Uint8(uint8(int8(v)))
		return err
	case "int16":
		v, err := asInt(value)
		w.Uint16(uint16(int16(v)))
		return err
	case "int32":
		v, err := asInt(value)
		w.Uint32(uint32(int32(v)))
		return err
	case "int64":
		v, err := asInt(value)
		w.Uint64(uint64(v))
		return err
	case "float64":
		f, ok := value.(float64)
		if !ok {
			return fmt.Errorf("float64: got %T", value)
		}
		w.Float64(f)
		return nil
	case "string":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("string: got %T", value)
		}
		w.WriteBytes([]byte(s))
		return nil
	case "bytes":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("bytes: expected hex string, got %T", value)
		}
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("bytes: %w", err)
		}
		w.WriteBytes(b)
		return nil
	case "name", "account_name", "action_name", "permission_name":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("name: got %T", value)
		}
		w.Name(s)
		return nil
	case "checksum256":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("checksum256: expected hex string, got %T", value)
		}
		b, err := hex.DecodeString(s)
		if err != nil || len(b) != 32 {
			return fmt.Errorf("checksum256: want 32 hex bytes")
		}
		for _, c := range b {
			w.Uint8(c)
		}
		return nil
	case "time_point_sec":
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("time_point_sec: got %T", value)
		}
		t, err := time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return fmt.Errorf("time_point_sec: %w", err)
		}
		w.Uint32(uint32(t.Unix()))
		return nil
	case "permission_level":
		return encodePermissionLevel(value, w)
	case "action":
		return encodeEmbeddedAction(value, w)
	}

	if sd := def.structDef(typeName); sd != nil {
		obj, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("struct %s: got %T", typeName, value)
		}
		return encodeStruct(def, sd, obj, w)
	}
	return fmt.Errorf("%w: %s", ErrUnknownType, typeName)
}

func encodeStruct(def *ABI, sd *StructDef, value map[string]any, w *chain.Writer) error {
	if sd.Base != "" {
		base := def.structDef(sd.Base)
		if base == nil {
			return fmt.Errorf("%w: base %s of %s", ErrUnknownType, sd.Base, sd.Name)
		}
		if err := encodeStruct(def, base, value, w); err != nil {
			return err
		}
	}
	for _, f := range sd.Fields {
		v, ok := value[f.Name]
		if !ok && !isOptional(f.Type) {
			return fmt.Errorf("struct %s: missing field %s", sd.Name, f.Name)
		}
		if err := encodeType(def, f.Type, v, w); err != nil {
			return fmt.Errorf("field %s.%s: %w", sd.Name, f.Name, err)
		}
	}
	return nil
}

func encodePermissionLevel(value any, w *chain.Writer) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("permission_level: got %T", value)
	}
	actor, _ := obj["actor"].(string)
	perm, _ := obj["permission"].(string)
	w.Name(actor)
	w.Name(perm)
	return nil
}

func encodeEmbeddedAction(value any, w *chain.Writer) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("action: got %T", value)
	}
	account, _ := obj["account"].(string)
	name, _ := obj["name"].(string)
	w.Name(account)
	w.Name(name)
	auths, _ := obj["authorization"].([]any)
	w.Varuint32(uint32(len(auths)))
	for _, a := range auths {
		if err := encodePermissionLevel(a, w); err != nil {
			return err
		}
	}
	hexData, ok := obj["hex_data"].(string)
	if !ok {
		return fmt.Errorf("action: embedded payload must be hex_data")
	}
	data, err := hex.DecodeString(hexData)
	if err != nil {
		return fmt.Errorf("action hex_data: %w", err)
	}
	w.WriteBytes(data)
	return nil
}

func asUint(value any) (uint64, error) {
	switch v := value.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case int:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned type", v)
		}
		return uint64(v), nil
	case int64:
		if v < 0 {
			return 0, fmt.Errorf("negative value %d for unsigned type", v)
		}
		return uint64(v), nil
	default:
		return 0, fmt.Errorf("unsigned integer: got %T", value)
	}
}

func asInt(value any) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("signed integer: got %T", value)
	}
}
