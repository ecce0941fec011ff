package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "go.yaml.in/yaml/v3"

	"padron/internal/storage"
)

// LoadSchema reads and validates the person-table mapping. Unknown keys are
// rejected so typos fail at startup instead of silently disabling a filter.
func LoadSchema(path string) (storage.Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return storage.Schema{}, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(b)
}

// ParseSchema decodes a YAML schema document.
func ParseSchema(data []byte) (storage.Schema, error) {
	var s storage.Schema
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return storage.Schema{}, errors.New("schema: empty document")
		}
		return storage.Schema{}, fmt.Errorf("schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return storage.Schema{}, err
	}
	return s, nil
}
