package nfse

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const recordSchemaURL = "nfse-record.json"

// Validator checks records against per-kind rules expressed as a JSON Schema
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the record schema
func NewValidator() (*Validator, error) {
	b, err := json.Marshal(buildRecordJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(recordSchemaURL, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(recordSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// buildRecordJSONSchema returns the rules for every canonical field; all fields are optional
func buildRecordJSONSchema() map[string]any {
	props := make(map[string]any, len(canonicalFields))
	for _, f := range canonicalFields {
		props[f.Name] = kindRule(f.Kind)
	}
	return map[string]any{
		"$schema":    "https://json-schema.org/draft/2020-12/schema",
		"type":       "object",
		"properties": props,
	}
}

func kindRule(k Kind) map[string]any {
	switch k {
	case KindCNPJ:
		return map[string]any{"type": "string", "pattern": `^\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}$`}
	case KindUF:
		return map[string]any{"type": "string", "pattern": `^[A-Za-z]{2}$`}
	case KindDate:
		return map[string]any{"type": "string", "pattern": `^\d{2}/\d{2}/\d{4}$`}
	case KindMoney:
		return map[string]any{"type": "number"}
	case KindBool:
		return map[string]any{"type": "boolean"}
	default:
		return map[string]any{"type": "string"}
	}
}

// kindReason is the message reported for a value that breaks its kind rule
func kindReason(k Kind) string {
	switch k {
	case KindCNPJ:
		return "must be a 14-digit CNPJ"
	case KindUF:
		return "must be a two-letter state code"
	case KindDate:
		return "must be dd/mm/yyyy"
	case KindMoney:
		return "must be a finite number"
	case KindBool:
		return "must be true or false"
	default:
		return "must be text"
	}
}

// Validate checks the fields of rec listed in schema, appends every violation
// to rec.Errors as "<field>: <reason>" in schema order and returns them.
// Field values are never changed.
func (v *Validator) Validate(rec *Record, schema Schema) []string {
	instance := make(map[string]any, len(schema))
	for _, name := range schema {
		f, ok := FieldByName(name)
		if !ok {
			continue
		}
		val := f.Value(rec)
		if val == nil {
			continue
		}
		// NaN and Inf have no JSON form; fed as strings they fail the number rule
		if x, isNum := val.(float64); isNum && (math.IsNaN(x) || math.IsInf(x, 0)) {
			val = strconv.FormatFloat(x, 'g', -1, 64)
		}
		instance[name] = val
	}

	err := v.schema.Validate(instance)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		msgs := []string{err.Error()}
		rec.Errors = append(rec.Errors, msgs...)
		return msgs
	}

	// one message per field, however many rules it broke
	seen := make(map[string]bool)
	var fields []string
	for _, leaf := range leaves(ve) {
		field := strings.SplitN(strings.TrimPrefix(leaf.InstanceLocation, "/"), "/", 2)[0]
		if field == "" || seen[field] {
			continue
		}
		seen[field] = true
		fields = append(fields, field)
	}
	sort.SliceStable(fields, func(i, j int) bool {
		return schema.Index(fields[i]) < schema.Index(fields[j])
	})

	msgs := make([]string, len(fields))
	for i, name := range fields {
		f, _ := FieldByName(name)
		msgs[i] = name + ": " + kindReason(f.Kind)
	}
	rec.Errors = append(rec.Errors, msgs...)
	return msgs
}

// leaves flattens a validation error tree into its concrete violations
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
