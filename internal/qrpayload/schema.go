package qrpayload

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON string

// ErrInvalidPayload is returned when a scanned payload does not match the schema.
var ErrInvalidPayload = errors.New("invalid consumer payload")

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Schema returns the published JSON Schema of Payload.
func Schema() string { return schemaJSON }

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("ayutrack-payload.json", schemaJSON)
	})
	return schema, schemaErr
}

// Validate checks raw scanned JSON against the payload schema and decodes it.
func Validate(raw []byte) (*Payload, error) {
	s, err := compiled()
	if err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
