// Package encoding provides the marshaling used for the on-disk collection
// files. The default marshaler writes indented UTF-8 JSON with HTML escaping
// turned off, so Arabic company and driver names round-trip literally
// instead of as \uXXXX escapes.
package encoding

import (
	"bytes"
	"encoding/json"
)

// Marshaler interface specifies encoding to byte array and back to the object.
type Marshaler interface {
	// Marshal encodes any object to a byte array.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a byte array back to its object type.
	Unmarshal(data []byte, v any) error
}

// DefaultMarshaler is the global default marshaler.
var DefaultMarshaler = NewMarshaler()

type defaultMarshaler struct{}

// NewMarshaler returns the default marshaler, which uses the stdlib json
// package with two-space indentation. Collection files are read by humans
// during support work, so readability beats compactness here.
func NewMarshaler() Marshaler {
	return &defaultMarshaler{}
}

func (m defaultMarshaler) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	// Encoder appends a trailing newline; keep it, files end with one.
	return buf.Bytes(), nil
}

func (m defaultMarshaler) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
