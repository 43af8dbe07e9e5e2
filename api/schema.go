package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pilacorp/go-did-gateway/apperr"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Request body schemas.
const (
	schemaSign   = "sign"
	schemaVerify = "verify"
	schemaSubmit = "submit"
)

var (
	schemasOnce sync.Once
	schemas     map[string]*gojsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[string]*gojsonschema.Schema)
		for _, name := range []string{schemaSign, schemaVerify, schemaSubmit} {
			raw, err := schemaFS.ReadFile("schema/" + name + ".json")
			if err != nil {
				schemasErr = fmt.Errorf("failed to read schema %s: %w", name, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
			if err != nil {
				schemasErr = fmt.Errorf("failed to compile schema %s: %w", name, err)
				return
			}
			schemas[name] = s
		}
	})
	return schemas, schemasErr
}

// validateDocument checks raw against the named schema.
func validateDocument(name string, raw []byte) error {
	all, err := loadSchemas()
	if err != nil {
		return apperr.Internal(err, "failed to load request schemas")
	}
	schema, ok := all[name]
	if !ok {
		return apperr.Internal(fmt.Errorf("unknown schema %q", name), "failed to load request schemas")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apperr.InvalidInput(err, "malformed JSON body")
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return apperr.Validation("invalid request body: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// decodeBody reads a size-limited JSON body, validates it against the named
// schema and decodes it into dst. An empty body decodes as an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, name string, dst any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("request body exceeds %d bytes", tooLarge.Limit)
		}
		return apperr.InvalidInput(err, "failed to read request body")
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return apperr.Validation("malformed JSON body")
	}

	if err := validateDocument(name, raw); err != nil {
		return err
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return apperr.InvalidInput(err, "invalid request body")
	}
	return nil
}
