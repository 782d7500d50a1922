package abi

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/si-chain/eosio-plugin/internal/chain"
)

func tokenABI() *ABI {
	return &ABI{
		Version: "v1.0",
		Types: []TypeDef{
			{NewTypeName: "quantity", Type: "uint64"},
		},
		Structs: []StructDef{
			{
				Name: "transfer",
				Fields: []FieldDef{
					{Name: "from", Type: "name"},
					{Name: "to", Type: "name"},
					{Name: "amount", Type: "quantity"},
					{Name: "memo", Type: "string"},
				},
			},
			{
				Name: "issue",
				Base: "transfer",
				Fields: []FieldDef{
					{Name: "tags", Type: "string[]"},
					{Name: "expires", Type: "time_point_sec?"},
				},
			},
		},
		Actions: []ActionDef{
			{Name: "transfer", Type: "transfer"},
			{Name: "issue", Type: "issue"},
		},
	}
}

func TestParse(t *testing.T) {
	raw := []byte(`{"version":"v1.0","structs":[{"name":"hi","fields":[{"name":"user","type":"name"}]}],"actions":[{"name":"hi","type":"hi"}]}`)
	def, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if def.ActionType("hi") != "hi" {
		t.Errorf("action type: got %q", def.ActionType("hi"))
	}
	if def.ActionType("bye") != "" {
		t.Error("expected empty type for undeclared action")
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed blob")
	}
	if _, err := Parse([]byte("{}")); !errors.Is(err, ErrEmptyABI) {
		t.Fatalf("expected ErrEmptyABI, got %v", err)
	}
}

func TestResolveTypeCycle(t *testing.T) {
	def := &ABI{
		Version: "v1.0",
		Types: []TypeDef{
			{NewTypeName: "a", Type: "b"},
			{NewTypeName: "b", Type: "a"},
		},
	}
	if _, err := def.ResolveType("a"); !errors.Is(err, ErrTypedefCycle) {
		t.Fatalf("expected ErrTypedefCycle, got %v", err)
	}
}

func TestRoundTripTransfer(t *testing.T) {
	def := tokenABI()
	value := map[string]any{
		"from":   "alice",
		"to":     "bob",
		"amount": uint64(1000),
		"memo":   "rent",
	}

	data, err := EncodeAction(def, "transfer", value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeAction(context.Background(), def, "transfer", data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, value) {
		t.Errorf("round trip mismatch:\n want %#v\n got  %#v", value, decoded)
	}

	reencoded, err := EncodeAction(def, "transfer", decoded)
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}
	if !bytes.Equal(reencoded, data) {
		t.Error("re-encoded bytes differ from original")
	}
}

func TestRoundTripInheritanceArrayOptional(t *testing.T) {
	def := tokenABI()
	value := map[string]any{
		"from":    "alice",
		"to":      "bob",
		"amount":  uint64(5),
		"memo":    "",
		"tags":    []any{"x", "y"},
		"expires": "2026-08-26T00:00:00",
	}
	data, err := EncodeAction(def, "issue", value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeAction(context.Background(), def, "issue", data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, value) {
		t.Errorf("round trip mismatch:\n want %#v\n got  %#v", value, decoded)
	}
}

func TestRoundTripOptionalAbsent(t *testing.T) {
	def := tokenABI()
	value := map[string]any{
		"from":    "alice",
		"to":      "bob",
		"amount":  uint64(5),
		"memo":    "m",
		"tags":    []any{},
		"expires": nil,
	}
	data, err := EncodeAction(def, "issue", value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeAction(context.Background(), def, "issue", data, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["expires"] != nil {
		t.Errorf("expected nil expires, got %v", decoded["expires"])
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	def := tokenABI()
	data, err := EncodeAction(def, "transfer", map[string]any{
		"from": "a", "to": "b", "amount": uint64(1), "memo": "",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data = append(data, 0x00)
	if _, err := DecodeAction(context.Background(), def, "transfer", data, nil); err == nil {
		t.Fatal("expected trailing bytes error")
	}
}

func TestDecodeUnknownAction(t *testing.T) {
	def := tokenABI()
	_, err := DecodeAction(context.Background(), def, "nosuch", nil, nil)
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestDecodeUnknownFieldType(t *testing.T) {
	def := &ABI{
		Version: "v1.0",
		Structs: []StructDef{
			{Name: "odd", Fields: []FieldDef{{Name: "x", Type: "mystery"}}},
		},
		Actions: []ActionDef{{Name: "odd", Type: "odd"}},
	}
	_, err := DecodeAction(context.Background(), def, "odd", []byte{1}, nil)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeEmbeddedActionWithResolver(t *testing.T) {
	inner := tokenABI()
	resolver := func(ctx context.Context, account string) (*ABI, error) {
		if account == "token" {
			return inner, nil
		}
		return nil, nil
	}

	outer := &ABI{
		Version: "v1.0",
		Structs: []StructDef{
			{Name: "propose", Fields: []FieldDef{{Name: "trx", Type: "action"}}},
		},
		Actions: []ActionDef{{Name: "propose", Type: "propose"}},
	}

	innerData, err := EncodeAction(inner, "transfer", map[string]any{
		"from": "alice", "to": "bob", "amount": uint64(3), "memo": "",
	})
	if err != nil {
		t.Fatalf("encode inner: %v", err)
	}

	var w chain.Writer
	w.Name("token")
	w.Name("transfer")
	w.Varuint32(0)
	w.WriteBytes(innerData)

	decoded, err := DecodeAction(context.Background(), outer, "propose", w.Bytes(), resolver)
	if err != nil {
		t.Fatalf("decode outer: %v", err)
	}
	trx, ok := decoded["trx"].(map[string]any)
	if !ok {
		t.Fatalf("trx: got %T", decoded["trx"])
	}
	data, ok := trx["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected resolved inner data, got %#v", trx)
	}
	if data["from"] != "alice" || data["amount"] != uint64(3) {
		t.Errorf("inner payload: %#v", data)
	}
}

func TestDecodeEmbeddedActionWithoutResolver(t *testing.T) {
	outer := &ABI{
		Version: "v1.0",
		Structs: []StructDef{
			{Name: "propose", Fields: []FieldDef{{Name: "trx", Type: "action"}}},
		},
		Actions: []ActionDef{{Name: "propose", Type: "propose"}},
	}

	var w chain.Writer
	w.Name("token")
	w.Name("transfer")
	w.Varuint32(0)
	w.WriteBytes([]byte{0xde, 0xad})

	decoded, err := DecodeAction(context.Background(), outer, "propose", w.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	trx := decoded["trx"].(map[string]any)
	if trx["hex_data"] != "dead" {
		t.Errorf("expected hex_data fallback, got %#v", trx)
	}
}
