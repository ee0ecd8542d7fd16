// Package jsonutil decodes the loosely typed JSON that language models produce.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString decodes a JSON string, number or boolean into a string.
// Models asked for "high" sometimes answer 1, and asked for "3" answer 3.
// null decodes to the empty string; objects and arrays keep their raw text.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	*f = FlexString(StringValue(data))
	return nil
}

// String returns the decoded value.
func (f FlexString) String() string {
	return string(f)
}

// StringValue converts raw JSON to a string without failing.
func StringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		if b, err := strconv.ParseBool(string(raw)); err == nil {
			return strconv.FormatBool(b)
		}
	case '{', '[':
		return string(raw)
	default:
		// Integers print without exponent or float rounding.
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10)
			}
			if f, err := n.Float64(); err == nil {
				return strconv.FormatFloat(f, 'g', -1, 64)
			}
		}
	}
	return string(raw)
}
