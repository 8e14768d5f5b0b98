package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrInvalidPayload is returned when a delivery body does not match its schema.
var ErrInvalidPayload = errors.New("invalid payload")

const schemaBase = "https://intake.local/schemas/"

const attachmentSchema = `{
  "type": "object",
  "properties": {
    "filename":      {"type": "string"},
    "name":          {"type": "string"},
    "contentType":   {"type": "string"},
    "mimeType":      {"type": "string"},
    "content":       {"type": "string"},
    "contentBase64": {"type": "string"},
    "data":          {"type": "string"},
    "encoding":      {"type": "string", "enum": ["base64", "raw", "utf8", "utf-8", "text"]},
    "url":           {"type": "string"}
  }
}`

const emailSchema = `{
  "type": "object",
  "required": ["from"],
  "properties": {
    "from":        {"type": "string", "minLength": 1},
    "to":          {"type": "string"},
    "subject":     {"type": "string"},
    "body":        {"type": "string"},
    "text":        {"type": "string"},
    "messageId":   {"type": "string"},
    "headers":     {"type": "object", "additionalProperties": {"type": "string"}},
    "attachments": {"type": "array", "items": {"$ref": "attachment.json"}}
  }
}`

const webhookSchema = `{
  "type": "object",
  "required": ["provider"],
  "properties": {
    "provider":    {"type": "string", "minLength": 1},
    "eventType":   {"type": "string"},
    "event_type":  {"type": "string"},
    "type":        {"type": "string"},
    "webhookId":   {"type": "string"},
    "id":          {"type": "string"},
    "timestamp":   {"type": ["string", "number"]},
    "signature":   {"type": "string"},
    "data":        {"type": "object"},
    "attachments": {"type": "array", "items": {"$ref": "attachment.json"}}
  }
}`

var (
	emailPayloadSchema   = mustCompile(schemaBase+"email.json", emailSchema)
	webhookPayloadSchema = mustCompile(schemaBase+"webhook.json", webhookSchema)
)

func mustCompile(name, schema string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaBase+"attachment.json", bytes.NewReader([]byte(attachmentSchema))); err != nil {
		panic(fmt.Sprintf("add attachment schema: %v", err))
	}
	if err := compiler.AddResource(name, bytes.NewReader([]byte(schema))); err != nil {
		panic(fmt.Sprintf("add %s: %v", name, err))
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compile %s: %v", name, err))
	}
	return compiled
}

// validatePayload checks body against schema and decodes it into out.
// Numbers stay json.Number so large ids survive into the fingerprint intact.
func validatePayload(schema *jsonschema.Schema, body []byte, out any) error {
	var v any
	if err := decodeJSON(body, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := decodeJSON(body, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func decodeJSON(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
