package core

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Operation represents a resource operation, one of Create, Read, Update, Delete, List
type Operation string

// all supported resource operations
const (
	OperationCreate Operation = "create"
	OperationRead   Operation = "read"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationList   Operation = "list"
)

// UnmarshalJSON is a custom JSON unmarshaller
func (o *Operation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = Operation(s)
	switch *o {
	case OperationCreate, OperationRead, OperationUpdate, OperationDelete, OperationList:
		return nil
	default:
		return fmt.Errorf("%s is not valid Operation", s)
	}
}

// Plural returns the plural form of the passed singular string.
//
// This is the algorithm used to create idiomatic REST routes
func Plural(singular string) string {
	if strings.HasSuffix(singular, "y") {
		return strings.TrimSuffix(singular, "y") + "ies"
	}
	return singular + "s"
}

// CamelCaseToSnakeCase converts a wire property name to its internal
// representation. Example: "ownerEmail" becomes "owner_email".
//
// The conversion is total and reversible for names made of ASCII letters
// and digits; a name without medial capitals passes through unchanged.
func CamelCaseToSnakeCase(property string) string {
	var b strings.Builder
	for i, r := range property {
		if 'A' <= r && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SnakeCaseToCamelCase converts an internal property name to its wire
// representation. Example: "owner_email" becomes "ownerEmail".
func SnakeCaseToCamelCase(property string) string {
	parts := strings.Split(property, "_")
	for i := 1; i < len(parts); i++ {
		s := parts[i]
		if len(s) == 0 {
			continue
		}
		runes := []rune(s)
		r := runes[0]
		if 'a' <= r && r <= 'z' {
			r += 'A' - 'a'
			runes[0] = r
		}
		parts[i] = string(runes)
	}
	return strings.Join(parts, "")
}
