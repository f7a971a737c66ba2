// Package jsonx provides JSON serialization helpers built on goccy/go-json
package jsonx

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"
)

// Marshal is a drop-in replacement for json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalToWriter marshals directly to a writer
func MarshalToWriter(w io.Writer, v interface{}) error {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Decode decodes from a reader, preserving numbers as json.Number so that
// decimal values survive a decode/encode round trip unchanged.
func Decode(r io.Reader, v interface{}) error {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

// Canonical serializes a nested value to its canonical string form. Map keys
// are emitted in sorted order, so repeated runs over unchanged nested content
// produce byte-identical output.
func Canonical(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := gojson.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	// Encode appends a trailing newline
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
