package jsonapi

import "context"

// Disposition is the tagged outcome of a persist operation. It replaces
// exception-style control flow: a hook that wants the endpoint to pretend
// success with an empty body returns Suppress instead of raising.
type Disposition int

const (
	// Proceed continues with the normal response.
	Proceed Disposition = iota
	// Suppress undoes the primary write and answers with an empty
	// success response. Used for privacy-preserving flows where a
	// side channel (e.g. a notification email) was taken instead.
	Suppress
)

// Hooks is the explicit, ordered lifecycle pipeline of a resource
// definition. The store invokes each hook at the named point of a persist
// operation; all hooks run inside the same transaction as the primary
// write, so dependent writes commit or roll back together.
//
// Any hook may be nil.
type Hooks struct {
	// BeforeValidate runs before the record is validated. Typical use:
	// derive persisted fields from virtual ones, e.g. hash a raw password.
	BeforeValidate func(ctx context.Context, tx Store, record *Record) error

	// AfterSave runs after the record has been written, with created
	// telling whether the write was an insert. Returning Suppress rolls
	// the transaction back and answers with no content.
	AfterSave func(ctx context.Context, tx Store, record *Record, created bool) (Disposition, error)

	// AfterSaveFailed runs when validation or the write failed, before
	// the transaction is rolled back. The returned error replaces the
	// original cause if non-nil.
	AfterSaveFailed func(ctx context.Context, tx Store, record *Record, cause error) error
}

