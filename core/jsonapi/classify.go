package jsonapi

// Classify maps a validation failure into a taxonomy error. The mapping is
// deterministic and covers exactly the seven known violation codes; any
// other code returns false and must propagate unchanged as an internal
// failure.
func Classify(failure *ValidationFailure) (*Error, bool) {
	switch failure.Code {
	case ValidationRequired:
		return ModelAttributeRequiredError(map[string]interface{}{
			"field": failure.Field,
		}), true
	case ValidationBlank:
		return ModelAttributeTooShortError(map[string]interface{}{
			"field":      failure.Field,
			"min_length": failure.param("min_length", 1),
		}), true
	case ValidationTooShort:
		return ModelAttributeTooShortError(map[string]interface{}{
			"field":      failure.Field,
			"min_length": failure.param("min_length", nil),
		}), true
	case ValidationTooLong:
		return ModelAttributeTooLongError(map[string]interface{}{
			"field":      failure.Field,
			"max_length": failure.param("max_length", nil),
		}), true
	case ValidationInvalid, ValidationNotUnique:
		return ModelAttributeInvalidError(map[string]interface{}{
			"field": failure.Field,
		}), true
	case ValidationNotUniqueTogether:
		return ModelFieldsUniqueTogetherError(map[string]interface{}{
			"fields": failure.param("fields", nil),
		}), true
	}
	return nil, false
}

func (f *ValidationFailure) param(name string, fallback interface{}) interface{} {
	if f.Params != nil {
		if value, ok := f.Params[name]; ok {
			return value
		}
	}
	return fallback
}
