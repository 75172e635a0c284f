package jsonapi

import (
	"fmt"
	"unicode/utf8"
)

// Validation failure codes reported by stores and definitions.
const (
	ValidationRequired          = "required"
	ValidationBlank             = "blank"
	ValidationTooShort          = "too_short"
	ValidationTooLong           = "too_long"
	ValidationInvalid           = "invalid"
	ValidationNotUnique         = "not_unique"
	ValidationNotUniqueTogether = "not_unique_together"
)

// ValidationFailure is a structured validation failure naming one offending
// field and one violation code. Multi-field failures report only the first
// field encountered; that one is what gets classified.
type ValidationFailure struct {
	Field  string
	Code   string
	Params map[string]interface{}
}

func (f *ValidationFailure) Error() string {
	return fmt.Sprintf("validation failed: field %q, code %q", f.Field, f.Code)
}

// Validate checks the record against the definition's field constraints and
// returns the first failure, or nil. Uniqueness is not checked here; it is
// enforced by the store.
func (d *Definition) Validate(record *Record) *ValidationFailure {
	for i := range d.Fields {
		spec := &d.Fields[i]
		if failure := spec.validate(record); failure != nil {
			return failure
		}
	}
	return nil
}

func (s *FieldSpec) validate(record *Record) *ValidationFailure {
	value, ok := record.Field(s.Name)
	if !ok || value == nil {
		if s.Required {
			return &ValidationFailure{Field: s.Name, Code: ValidationRequired}
		}
		return nil
	}

	text, isString := value.(string)
	if !isString {
		return nil
	}

	minLength := s.MinLength
	if minLength == 0 && s.Required {
		minLength = 1
	}
	if s.Required && text == "" {
		return &ValidationFailure{
			Field:  s.Name,
			Code:   ValidationBlank,
			Params: map[string]interface{}{"min_length": minLength},
		}
	}
	// lengths count characters, not bytes
	length := utf8.RuneCountInString(text)
	if minLength > 0 && length < minLength {
		return &ValidationFailure{
			Field:  s.Name,
			Code:   ValidationTooShort,
			Params: map[string]interface{}{"min_length": minLength},
		}
	}
	if s.MaxLength > 0 && length > s.MaxLength {
		return &ValidationFailure{
			Field:  s.Name,
			Code:   ValidationTooLong,
			Params: map[string]interface{}{"max_length": s.MaxLength},
		}
	}
	if s.Pattern != nil && !s.Pattern.MatchString(text) {
		return &ValidationFailure{Field: s.Name, Code: ValidationInvalid}
	}
	return nil
}
