// Package json is the jsoniter facade used for all wire encoding in the
// gateway. Frames and channel payloads go through this package so the codec
// can be swapped in one place.
package json

import jsoniter "github.com/json-iterator/go"

var (
	// JSON is the jsoniter instance used throughout the codebase.
	JSON = jsoniter.ConfigCompatibleWithStandardLibrary

	// Marshal is a shorthand for JSON.Marshal
	Marshal = JSON.Marshal

	// Unmarshal is a shorthand for JSON.Unmarshal
	Unmarshal = JSON.Unmarshal

	// MarshalToString is a shorthand for JSON.MarshalToString
	MarshalToString = JSON.MarshalToString

	// Valid is a shorthand for JSON.Valid
	Valid = JSON.Valid
)
