// Package json wraps goccy/go-json for payload and value serialization
package json

import (
	"bytes"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

// Marshal encodes v as JSON
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal decodes JSON data into v
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent encodes v as indented JSON
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Valid reports whether data is valid JSON
func Valid(data []byte) bool {
	return gojson.Valid(data)
}

// MarshalString encodes v as a JSON string without HTML escaping
func MarshalString(v interface{}) (string, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// DecodeText parses JSON held in a string, reporting false when it is not valid JSON
func DecodeText(s string) (interface{}, bool) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || !gojson.Valid(trimmed) {
		return nil, false
	}
	var out interface{}
	if err := gojson.Unmarshal(trimmed, &out); err != nil {
		return nil, false
	}
	return out, true
}
