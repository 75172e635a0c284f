package jsonapi

import (
	"context"

	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/condition"
)

// Store is the persistence collaborator of the engine. Implementations own
// query execution, uniqueness enforcement and transactional integrity; the
// engine only drives them through this interface.
type Store interface {
	// Get retrieves one record by its identifier, using the definition's
	// configured identifier field. It returns ErrRecordNotFound when no
	// such record exists.
	Get(ctx context.Context, definition *Definition, id string) (*Record, error)

	// List retrieves the records of a resource, narrowed by the scope
	// condition in query mode for the given identity. A nil scope returns
	// everything.
	List(ctx context.Context, definition *Definition, scope condition.Condition, identity *access.Identity) ([]*Record, error)

	// Save validates and persists the record, running the definition's
	// hook pipeline. Validation happens before persistence is attempted.
	// The whole operation, including dependent writes made by hooks, is
	// atomic. The error is a *ValidationFailure for declarative
	// violations and uniqueness conflicts, a *Error when a hook failed
	// with a taxonomy error, or an opaque internal error.
	Save(ctx context.Context, record *Record) (Disposition, error)

	// Delete removes the record.
	Delete(ctx context.Context, record *Record) error
}
