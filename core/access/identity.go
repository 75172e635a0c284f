/*Package access provides utilities for access control
 */
package access

import (
	"context"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyIdentity contextKey = "_identity_"
)

// Identity is the acting principal of a request.
//
// An identity carries a list of permission keys and a set of named fields,
// for example the identifier of the organization the principal belongs to.
// Identities are supplied per request; the engine never stores them.
//
// Identities are added to a request context with
//
//	ctx = identity.ContextWithIdentity(ctx)
//
// and retrieved with
//
//	identity := access.IdentityFromContext(ctx)
//
// Identity objects are added to the context by middleware implementations,
// depending on authorization tokens in the HTTP request.
type Identity struct {
	Permissions []string               `json:"permissions"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// HasPermission returns true if the identity contains the requested
// permission key; otherwise it returns false. A nil identity has no
// permissions.
func (i *Identity) HasPermission(key string) bool {
	if i == nil || i.Permissions == nil {
		return false
	}
	for _, hasKey := range i.Permissions {
		if key == hasKey {
			return true
		}
	}
	return false
}

// Field returns the value for the requested named field; if the field
// does not exist, it returns nil and false.
func (i *Identity) Field(name string) (interface{}, bool) {
	if i == nil || i.Fields == nil {
		return nil, false
	}
	value, ok := i.Fields[name]
	return value, ok
}

// ContextWithIdentity returns a new context with this identity added to it
func (i *Identity) ContextWithIdentity(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, i)
}

// IdentityFromContext retrieves an identity from the context
func IdentityFromContext(ctx context.Context) *Identity {
	i, ok := ctx.Value(contextKeyIdentity).(*Identity)
	if ok {
		return i
	}
	return nil
}
