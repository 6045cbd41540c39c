package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one key/value pair of a provider payload. Values are strings or
// json.Number; providers are sensitive to both key order and number
// formatting, so nothing is coerced.
type Field struct {
	Key   string
	Value any
}

// Fields is an ordered sequence of payload fields. Order is preserved
// through encode and decode because some provider signatures are computed
// over the serialized byte stream.
type Fields []Field

// Get returns the value for key rendered as a string.
func (fields Fields) Get(key string) (string, bool) {
	for _, field := range fields {
		if field.Key == key {
			return fmt.Sprintf("%v", field.Value), true
		}
	}
	return "", false
}

// MarshalJSON serializes the fields as a JSON object with the stored key
// order and no extraneous whitespace.
func (fields Fields) MarshalJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for index, field := range fields {
		if index > 0 {
			buffer.WriteByte(',')
		}
		encodedKey, err := json.Marshal(field.Key)
		if err != nil {
			return nil, err
		}
		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		encodedValue, err := json.Marshal(field.Value)
		if err != nil {
			return nil, err
		}
		buffer.Write(encodedValue)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}

// ParseFields reads a single flat JSON object preserving key order. Nested
// objects and arrays are rejected; the provider contract is flat.
func ParseFields(raw []byte) (Fields, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	openToken, err := decoder.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	if delim, ok := openToken.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("%w: expected object", ErrPayloadFormat)
	}

	var fields Fields
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("%w: non-string key", ErrPayloadFormat)
		}
		valueToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
		}
		switch value := valueToken.(type) {
		case string:
			fields = append(fields, Field{Key: key, Value: value})
		case json.Number:
			fields = append(fields, Field{Key: key, Value: value})
		case nil:
			fields = append(fields, Field{Key: key, Value: ""})
		case bool:
			fields = append(fields, Field{Key: key, Value: fmt.Sprintf("%t", value)})
		default:
			return nil, fmt.Errorf("%w: unsupported value for key %q", ErrPayloadFormat, key)
		}
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadFormat, err)
	}
	return fields, nil
}
