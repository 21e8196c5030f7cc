package artifact

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/did.json
var didSchemaJSON string

//go:embed schemas/credential.json
var credentialSchemaJSON string

//go:embed schemas/document.json
var documentSchemaJSON string

var (
	compiledSchemas   map[Kind]*gojsonschema.Schema
	compileSchemaOnce sync.Once
	errCompileSchema  error
)

// loadSchemas compiles the embedded creation-payload schemas exactly once.
func loadSchemas() (map[Kind]*gojsonschema.Schema, error) {
	compileSchemaOnce.Do(func() {
		sources := map[Kind]string{
			KindDID:        didSchemaJSON,
			KindCredential: credentialSchemaJSON,
			KindDocument:   documentSchemaJSON,
		}
		compiledSchemas = make(map[Kind]*gojsonschema.Schema, len(sources))
		for kind, src := range sources {
			schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
			if err != nil {
				errCompileSchema = fmt.Errorf("failed to compile %s payload schema: %w", kind, err)
				return
			}
			compiledSchemas[kind] = schema
		}
	})
	return compiledSchemas, errCompileSchema
}

// ValidatePayload checks a creation payload against the embedded schema for
// the given kind. The remote service performs the same validation; checking
// here avoids a round trip for payloads that can never be accepted.
func ValidatePayload(kind Kind, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("creation payload is empty")
	}

	schemas, err := loadSchemas()
	if err != nil {
		return err
	}
	schema, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("invalid artifact kind: %s", kind)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		return fmt.Errorf("%s payload is invalid: %v", kind, result.Errors())
	}
	return nil
}
