package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchema declares the shape of job variables or decoded payloads.
// It marshals to a draft-07 document that gojsonschema compiles.
type JSONSchema struct {
	Type                 string              `json:"type"`
	Properties           map[string]Property `json:"properties"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties bool                `json:"additionalProperties"`
}

type Property struct {
	Type        string              `json:"type,omitempty"`
	Description string              `json:"description,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Pattern     string              `json:"pattern,omitempty"`
	MinLength   *int                `json:"minLength,omitempty"`
	MaxLength   *int                `json:"maxLength,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Required    []string            `json:"required,omitempty"`
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetErrorMessages flattens errors into "field: message" strings.
func (r *ValidationResult) GetErrorMessages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return out
}

// Validator is a compiled schema, safe for concurrent use.
type Validator struct {
	schema *gojsonschema.Schema
}

// Compile turns a declarative schema into a reusable validator.
func Compile(schema JSONSchema) (*Validator, error) {
	if schema.Properties == nil {
		schema.Properties = map[string]Property{}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: compiled}, nil
}

// MustCompile is Compile for package-level schemas known to be valid.
func MustCompile(schema JSONSchema) *Validator {
	v, err := Compile(schema)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateBytes validates a raw JSON document.
func (v *Validator) ValidateBytes(doc []byte) *ValidationResult {
	return v.validate(gojsonschema.NewBytesLoader(doc))
}

// ValidateMap validates already-decoded job variables.
func (v *Validator) ValidateMap(doc map[string]interface{}) *ValidationResult {
	return v.validate(gojsonschema.NewGoLoader(doc))
}

func (v *Validator) validate(loader gojsonschema.JSONLoader) *ValidationResult {
	res, err := v.schema.Validate(loader)
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "MALFORMED_DOCUMENT"}},
		}
	}
	if res.Valid() {
		return &ValidationResult{Valid: true}
	}

	errs := make([]ValidationError, 0, len(res.Errors()))
	for _, re := range res.Errors() {
		errs = append(errs, ValidationError{
			Field:   re.Field(),
			Message: re.Description(),
			Code:    re.Type(),
		})
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return &ValidationResult{Valid: false, Errors: errs}
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*Validator{}
)

// ValidateInput validates job variables against schema, caching compiled schemas by content.
func ValidateInput(input map[string]interface{}, schema JSONSchema) *ValidationResult {
	raw, err := json.Marshal(schema)
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{Field: "(schema)", Message: err.Error(), Code: "INVALID_SCHEMA"}}}
	}

	cacheMu.Lock()
	v, ok := cache[string(raw)]
	cacheMu.Unlock()
	if !ok {
		if v, err = Compile(schema); err != nil {
			return &ValidationResult{Errors: []ValidationError{{Field: "(schema)", Message: err.Error(), Code: "INVALID_SCHEMA"}}}
		}
		cacheMu.Lock()
		cache[string(raw)] = v
		cacheMu.Unlock()
	}
	return v.ValidateMap(input)
}

// Float is a helper for Minimum/Maximum literals.
func Float(f float64) *float64 { return &f }

// Int is a helper for MinLength/MaxLength literals.
func Int(i int) *int { return &i }
