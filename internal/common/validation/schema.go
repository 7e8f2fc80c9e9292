package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schemas for the successful lookup gateway responses. Failure bodies are not
// validated: only the status field is inspected.
const (
	PANResponseSchema = `{
		"type": "object",
		"required": ["status", "fullName"],
		"properties": {
			"status":    {"type": "string"},
			"fullName":  {"type": "string", "minLength": 1},
			"panNumber": {"type": "string"},
			"message":   {"type": "string"}
		}
	}`

	PostcodeResponseSchema = `{
		"type": "object",
		"required": ["status", "city", "state"],
		"properties": {
			"status": {"type": "string"},
			"city": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}
			},
			"state": {
				"type": "array",
				"minItems": 1,
				"items": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}}
			}
		}
	}`

	// VerifyPANJobSchema and PostcodeJobSchema describe the variables
	// accepted by the lookup workers.
	VerifyPANJobSchema = `{
		"type": "object",
		"required": ["panNumber"],
		"properties": {
			"panNumber": {"type": "string", "minLength": 1}
		}
	}`

	PostcodeJobSchema = `{
		"type": "object",
		"required": ["postcode"],
		"properties": {
			"postcode": {"type": "string", "minLength": 1}
		}
	}`
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator is a compiled JSON schema.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile parses a JSON schema document.
func Compile(schemaJSON string) (*Validator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// MustCompile is like Compile but panics on an invalid schema. It is meant for
// the package-level schema constants.
func MustCompile(schemaJSON string) *Validator {
	v, err := Compile(schemaJSON)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateBytes validates a raw JSON document.
func (v *Validator) ValidateBytes(doc []byte) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewBytesLoader(doc))
}

// ValidateGo validates a decoded Go value such as a job variable map.
func (v *Validator) ValidateGo(doc interface{}) (*ValidationResult, error) {
	return v.validate(gojsonschema.NewGoLoader(doc))
}

func (v *Validator) validate(loader gojsonschema.JSONLoader) (*ValidationResult, error) {
	result, err := v.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}
