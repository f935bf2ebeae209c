package nfse

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownField is returned for names outside the canonical field set
	ErrUnknownField = errors.New("unknown field")
	// ErrDuplicateField is returned when a schema lists a field twice
	ErrDuplicateField = errors.New("duplicate field")
)

// Schema is the user-ordered list of fields exported to the delimited file
type Schema []string

// DefaultSchema returns every canonical field in canonical order
func DefaultSchema() Schema {
	s := make(Schema, len(canonicalFields))
	for i, f := range canonicalFields {
		s[i] = f.Name
	}
	return s
}

// ParseSchema validates a list of field names
func ParseSchema(names []string) (Schema, error) {
	if len(names) == 0 {
		return nil, errors.New("schema must list at least one field")
	}
	seen := make(map[string]bool, len(names))
	s := make(Schema, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, ok := fieldsByName[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateField, name)
		}
		seen[name] = true
		s = append(s, name)
	}
	return s, nil
}

// Move returns a copy of the schema with the field at from moved to index to
func (s Schema) Move(from, to int) (Schema, error) {
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) {
		return nil, fmt.Errorf("move %d -> %d out of range for %d fields", from, to, len(s))
	}
	out := make(Schema, 0, len(s))
	out = append(out, s[:from]...)
	out = append(out, s[from+1:]...)
	moved := s[from]
	out = append(out[:to], append(Schema{moved}, out[to:]...)...)
	return out, nil
}

// Index returns the position of a field in the schema, or -1
func (s Schema) Index(name string) int {
	for i, n := range s {
		if n == name {
			return i
		}
	}
	return -1
}

// DecimalLocale selects the decimal separator of exported money values
type DecimalLocale string

const (
	DecimalPT DecimalLocale = "pt" // 1500,00
	DecimalEN DecimalLocale = "en" // 1500.00
)

// ParseDecimalLocale validates a locale name
func ParseDecimalLocale(s string) (DecimalLocale, error) {
	switch DecimalLocale(strings.ToLower(strings.TrimSpace(s))) {
	case DecimalPT:
		return DecimalPT, nil
	case DecimalEN:
		return DecimalEN, nil
	}
	return "", fmt.Errorf("invalid decimal locale %q: must be pt or en", s)
}
