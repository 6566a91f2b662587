package config

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// agentsSchema captures the structural shape of AgentsConfig beyond what
// struct tags express (required keys, enum values), validated ahead of the
// invariant checks in AgentsConfig.Validate.
const agentsSchema = `{
  "type": "object",
  "required": ["agents"],
  "properties": {
    "agents": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": {
        "type": "object",
        "required": ["identifier", "name", "transport"],
        "properties": {
          "transport": {"enum": ["http", "sse", "stdio", "direct"]}
        }
      }
    }
  }
}`

const providersSchema = `{
  "type": "object",
  "properties": {
    "mcpServers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["identifier", "name"]
      }
    },
    "restServers": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["identifier", "name", "url"]
      }
    }
  }
}`

const webhooksSchema = `{
  "type": "object",
  "required": ["webhooks"],
  "properties": {
    "webhooks": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["name", "allowedAgents"],
        "properties": {
          "allowedAgents": {"type": "array", "minItems": 1}
        }
      }
    }
  }
}`

// ValidateSchema runs raw JSON bytes through the named document's JSON
// Schema, ahead of unmarshalling into the typed struct. Returns a
// descriptive error on the first violation found.
func ValidateSchema(doc string, raw []byte) error {
	var schema string
	switch doc {
	case "agents":
		schema = agentsSchema
	case "providers":
		schema = providersSchema
	case "webhooks":
		schema = webhooksSchema
	default:
		return fmt.Errorf("unknown config document %q", doc)
	}

	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		if len(result.Errors()) > 0 {
			return fmt.Errorf("schema violation: %s", result.Errors()[0].String())
		}
		return fmt.Errorf("schema violation")
	}
	return nil
}
