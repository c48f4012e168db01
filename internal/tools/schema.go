package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EmptyObjectSchema accepts any object; used by tools without parameters.
var EmptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

var reflector = &invopop.Reflector{
	Anonymous:                 true,
	DoNotReference:            true,
	ExpandedStruct:            true,
	AllowAdditionalProperties: true,
}

// ReflectSchema derives a JSON schema from a Go input struct. Fields without
// omitempty are required; descriptions come from jsonschema_description tags.
func ReflectSchema(v any) json.RawMessage {
	if v == nil {
		return EmptyObjectSchema
	}
	schema := reflector.Reflect(v)
	schema.Version = ""
	data, err := json.Marshal(schema)
	if err != nil {
		return EmptyObjectSchema
	}
	return data
}

var schemaCache sync.Map

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := schemaCache.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	if err := compiler.AddResource("tool.schema.json", bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	compiled, err := compiler.Compile("tool.schema.json")
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// Validate checks params against schema. Empty params are treated as {}.
func Validate(schema, params json.RawMessage) error {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage(`{}`)
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}

	var decoded any
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		return fmt.Errorf("decode tool input: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}
