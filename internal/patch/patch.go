// Package patch provides an optional field wrapper for sparse update payloads.
//
// A Field distinguishes three states that a plain pointer cannot:
// absent from the payload (leave unchanged), explicit null (clear), and a value.
package patch

import (
	"bytes"
	"encoding/json"
)

// Field is one optional member of a PATCH payload.
type Field[T any] struct {
	Set   bool
	Null  bool
	Value T
}

// Of returns a Field carrying v.
func Of[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

// Null returns a Field that clears the target.
func Null[T any]() Field[T] {
	return Field[T]{Set: true, Null: true}
}

// UnmarshalJSON is only called when the key is present, which is what marks
// the field as set.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		f.Null = true
		var zero T
		f.Value = zero
		return nil
	}
	f.Null = false
	return json.Unmarshal(data, &f.Value)
}

// MarshalJSON writes null for unset or null fields.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.Set || f.Null {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Apply writes the field into a non-nullable target. A null clears the target
// to its zero value.
func (f Field[T]) Apply(target *T) {
	if !f.Set {
		return
	}
	if f.Null {
		var zero T
		*target = zero
		return
	}
	*target = f.Value
}

// ApplyPtr writes the field into a nullable target.
func (f Field[T]) ApplyPtr(target **T) {
	if !f.Set {
		return
	}
	if f.Null {
		*target = nil
		return
	}
	v := f.Value
	*target = &v
}
