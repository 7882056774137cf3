package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	gosync "sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"notion-content-sync/internal/schema"
)

// mappingSchema constrains the override document: a flat object of
// non-empty appField -> property-name strings.
const mappingSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"additionalProperties": {"type": "string", "minLength": 1}
}`

var (
	mappingSchemaOnce     gosync.Once
	compiledMappingSchema *jsonschema.Schema
	mappingSchemaErr      error
)

func mappingValidator() (*jsonschema.Schema, error) {
	mappingSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(mappingSchema))
		if err != nil {
			mappingSchemaErr = fmt.Errorf("parse mapping schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("mapping.schema.json", doc); err != nil {
			mappingSchemaErr = fmt.Errorf("add mapping schema: %w", err)
			return
		}
		compiledMappingSchema, mappingSchemaErr = compiler.Compile("mapping.schema.json")
	})
	return compiledMappingSchema, mappingSchemaErr
}

// ValidateMappingDocument checks a raw override document against the
// mapping JSON Schema.
func ValidateMappingDocument(raw []byte) error {
	validator, err := mappingValidator()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse mapping document: %w", err)
	}
	if err := validator.Validate(inst); err != nil {
		return fmt.Errorf("mapping document invalid: %w", err)
	}
	return nil
}

// GetMapping loads the override document for a content model. A model with
// no stored document yields an empty mapping at version 0.
func (s *Store) GetMapping(ctx context.Context, model string) (schema.FieldMapping, int, error) {
	var doc []byte
	var version int
	err := s.pool.QueryRow(ctx,
		`SELECT document, version FROM field_mappings WHERE model = $1`, model).
		Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return schema.FieldMapping{}, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load field mapping: %w", err)
	}
	var mapping schema.FieldMapping
	if err := json.Unmarshal(doc, &mapping); err != nil {
		return nil, 0, fmt.Errorf("decode field mapping: %w", err)
	}
	return mapping, version, nil
}

// PutMapping validates and stores the override document, bumping the
// version on every write.
func (s *Store) PutMapping(ctx context.Context, model string, doc schema.FieldMapping) (int, error) {
	if doc == nil {
		doc = schema.FieldMapping{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal field mapping: %w", err)
	}
	if err := ValidateMappingDocument(raw); err != nil {
		return 0, err
	}

	var version int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO field_mappings (model, version, document, updated_at)
		VALUES ($1, 1, $2, $3)
		ON CONFLICT (model) DO UPDATE SET
			document = EXCLUDED.document,
			version = field_mappings.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version`,
		model, raw, time.Now().UTC()).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("store field mapping: %w", err)
	}
	return version, nil
}
