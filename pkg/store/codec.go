package store

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// jsonAPI sorts map keys so encoded documents are stable.
var jsonAPI = sonic.ConfigStd

// Normalize converts an object-shaped value into a Document holding only
// JSON types, so every backend returns the same shapes.
func Normalize(value any) (Document, error) {
	if doc, ok := value.(Document); ok {
		value = map[string]any(doc)
	}
	raw, err := jsonAPI.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return DecodeDocument(raw)
}

// EncodeDocument renders doc as JSON.
func EncodeDocument(doc Document) ([]byte, error) {
	raw, err := jsonAPI.Marshal(map[string]any(doc))
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return raw, nil
}

// DecodeDocument parses a JSON object.
func DecodeDocument(raw []byte) (Document, error) {
	var doc map[string]any
	if err := jsonAPI.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, errors.New("decode document: not a JSON object")
	}
	return Document(doc), nil
}
