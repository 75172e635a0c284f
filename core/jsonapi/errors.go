package jsonapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a classified failure with a stable code and structured metadata.
// It renders on the wire as one entry of the "errors" array.
type Error struct {
	Code   string
	Status int
	Meta   map[string]interface{}
}

func (e *Error) Error() string {
	if e.Meta != nil {
		return fmt.Sprintf("%s %v", e.Code, e.Meta)
	}
	return e.Code
}

// AsError returns the taxonomy error wrapped in err, or nil if err is not one.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}

// ErrRecordNotFound is the sentinel a store returns when a record does not
// exist. The controller maps it to ModelNotFoundError.
var ErrRecordNotFound = errors.New("record not found")

func badRequest(code string, meta map[string]interface{}) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest, Meta: meta}
}

// BadRequestError indicates a bad request was given.
func BadRequestError() *Error {
	return badRequest("bad_request_error", nil)
}

// NotFoundError indicates a requested resource was not found.
func NotFoundError() *Error {
	return &Error{Code: "not_found_error", Status: http.StatusNotFound}
}

// ModelAttributeInvalidError indicates a model attribute is invalid.
func ModelAttributeInvalidError(meta map[string]interface{}) *Error {
	return badRequest("model_attribute_invalid_error", meta)
}

// ModelAttributeNotAllowedError indicates a model attribute is not allowed.
func ModelAttributeNotAllowedError(key string) *Error {
	return badRequest("model_attribute_not_allowed_error", map[string]interface{}{"key": key})
}

// ModelAttributeRequiredError indicates a model attribute is required.
func ModelAttributeRequiredError(meta map[string]interface{}) *Error {
	return badRequest("model_attribute_required_error", meta)
}

// ModelAttributeTooLongError indicates a model attribute is too long.
func ModelAttributeTooLongError(meta map[string]interface{}) *Error {
	return badRequest("model_attribute_too_long_error", meta)
}

// ModelAttributeTooShortError indicates a model attribute is too short.
func ModelAttributeTooShortError(meta map[string]interface{}) *Error {
	return badRequest("model_attribute_too_short_error", meta)
}

// ModelFieldsUniqueTogetherError indicates a list of model fields should be
// unique together but aren't.
func ModelFieldsUniqueTogetherError(meta map[string]interface{}) *Error {
	return badRequest("model_fields_unique_together_error", meta)
}

// ModelIdDoesNotMatchError indicates an inconsistency between the model id
// in the request url and request body.
func ModelIdDoesNotMatchError() *Error {
	return badRequest("model_id_does_not_match_error", nil)
}

// ModelIdRequiredError indicates the model id is required but was not given.
func ModelIdRequiredError() *Error {
	return badRequest("model_id_required_error", nil)
}

// ModelNotFoundError indicates a model is not found, or that the acting
// identity has no permission to view it. In the latter case, the engine
// pretends the model doesn't exist (for privacy reasons).
func ModelNotFoundError() *Error {
	return &Error{Code: "model_not_found_error", Status: http.StatusNotFound}
}

// ModelRelationshipNotAllowedError indicates a model relationship is not allowed.
func ModelRelationshipNotAllowedError(key string) *Error {
	return badRequest("model_relationship_not_allowed_error", map[string]interface{}{"key": key})
}

// ModelTypeInvalidError indicates a model type is invalid.
func ModelTypeInvalidError() *Error {
	return badRequest("model_type_invalid_error", nil)
}

// RequestBodyJsonDecodeError indicates the request body contains invalid JSON.
func RequestBodyJsonDecodeError() *Error {
	return badRequest("request_body_json_decode_error", nil)
}

// RequestBodyJsonSchemaError indicates the request body JSON does not adhere
// to the JSON:API format.
func RequestBodyJsonSchemaError() *Error {
	return badRequest("request_body_json_schema_error", nil)
}

// RequestBodyNotAllowedError indicates a request body was given but is not allowed.
func RequestBodyNotAllowedError() *Error {
	return badRequest("request_body_not_allowed_error", nil)
}

// RequestHeaderInvalidError indicates a request header is invalid.
func RequestHeaderInvalidError(key, value string) *Error {
	return badRequest("request_header_invalid_error", map[string]interface{}{"key": key, "value": value})
}

// RequestMethodNotAllowedError indicates the request method is not allowed
// for this resource.
func RequestMethodNotAllowedError() *Error {
	return badRequest("request_method_not_allowed_error", nil)
}
