// Copyright 2026 The Pulse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"os"
	"reflect"
)

// WriteJSON marshals value as indented JSON and writes it to stdout.
// Commands with a --json flag route their output through this so that
// machine consumers always see the same two-space-indented shape.
//
// Nil slices are normalized to empty slices before serialization, so
// callers never need to guard against null JSON output.
func WriteJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(normalizeNilSlice(value))
}

// normalizeNilSlice returns an empty slice of the same type if value
// is a nil slice, so that JSON serialization produces [] instead of
// null. Returns value unchanged for all other types.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
