// Package abi models per-account schema definitions and the schema-driven
// binary codec used to turn opaque action payloads into structured documents.
package abi

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors surfaced by schema resolution. Decode callers treat all of these as
// "fall back to hex".
var (
	ErrEmptyABI      = errors.New("empty abi definition")
	ErrUnknownType   = errors.New("unknown type")
	ErrTypedefCycle  = errors.New("typedef resolution too deep")
	ErrUnknownAction = errors.New("action not declared in abi")
)

// TypeDef aliases an existing type under a new name.
type TypeDef struct {
	NewTypeName string `json:"new_type_name" bson:"new_type_name"`
	Type        string `json:"type" bson:"type"`
}

// FieldDef is one named, typed field of a struct.
type FieldDef struct {
	Name string `json:"name" bson:"name"`
	Type string `json:"type" bson:"type"`
}

// StructDef defines a composite type, optionally inheriting the fields of a
// base struct.
type StructDef struct {
	Name   string     `json:"name" bson:"name"`
	Base   string     `json:"base,omitempty" bson:"base,omitempty"`
	Fields []FieldDef `json:"fields" bson:"fields"`
}

// ActionDef binds an action name to the struct type of its payload.
type ActionDef struct {
	Name string `json:"name" bson:"name"`
	Type string `json:"type" bson:"type"`
}

// ABI is a per-account, potentially evolving schema describing how to
// interpret that account's action payloads.
type ABI struct {
	Version string      `json:"version" bson:"version"`
	Types   []TypeDef   `json:"types,omitempty" bson:"types,omitempty"`
	Structs []StructDef `json:"structs,omitempty" bson:"structs,omitempty"`
	Actions []ActionDef `json:"actions,omitempty" bson:"actions,omitempty"`
}

// Parse unpacks a raw embedded schema blob. Contracts are not required to
// publish a decodable schema, so callers treat an error as "skip".
func Parse(raw []byte) (*ABI, error) {
	var def ABI
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	if def.Version == "" && len(def.Structs) == 0 && len(def.Actions) == 0 {
		return nil, ErrEmptyABI
	}
	return &def, nil
}

// ActionType returns the payload type registered for an action name, or ""
// if the action is not declared.
func (a *ABI) ActionType(name string) string {
	for _, act := range a.Actions {
		if act.Name == name {
			return act.Type
		}
	}
	return ""
}

// structDef returns the struct definition for a type name, if any.
func (a *ABI) structDef(name string) *StructDef {
	for i := range a.Structs {
		if a.Structs[i].Name == name {
			return &a.Structs[i]
		}
	}
	return nil
}

// maxTypedefDepth bounds typedef chains so a malformed schema cannot loop.
const maxTypedefDepth = 16

// ResolveType follows typedef aliases to the underlying type name.
func (a *ABI) ResolveType(name string) (string, error) {
	for depth := 0; depth < maxTypedefDepth; depth++ {
		resolved := false
		for _, td := range a.Types {
			if td.NewTypeName == name {
				name = td.Type
				resolved = true
				break
			}
		}
		if !resolved {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrTypedefCycle, name)
}

// isArray reports whether the type name carries the array suffix.
func isArray(name string) bool { return strings.HasSuffix(name, "[]") }

// isOptional reports whether the type name carries the optional suffix.
func isOptional(name string) bool { return strings.HasSuffix(name, "?") }
