package store

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// encodeColumn is the stored text of a JSON column. Values that cannot be
// encoded are stored as null.
func encodeColumn(v any) string {
	s, err := jsonAPI.MarshalToString(v)
	if err != nil {
		return "null"
	}
	return s
}

// decodeColumn decodes a stored JSON column into dst. Empty and null columns
// leave dst untouched.
func decodeColumn(name, s string, dst any) error {
	if s == "" || s == "null" {
		return nil
	}
	if err := jsonAPI.UnmarshalFromString(s, dst); err != nil {
		return fmt.Errorf("store: decode %s column: %w", name, err)
	}
	return nil
}
