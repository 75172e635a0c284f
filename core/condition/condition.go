/*Package condition provides composable authorization predicates.

A Condition is an immutable predicate tree over a candidate record and an
acting identity. Every node supports two modes: Match evaluates the predicate
against one record instance, Where compiles it into a SQL predicate that
narrows a collection query. Conditions are constructed once at configuration
time and are safe for concurrent reuse.
*/
package condition

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/cantal-tech/jsonapi/core/access"
)

// Fields is a read-only view of a record's named fields.
type Fields interface {
	Field(name string) (interface{}, bool)
}

// Condition is a composable authorization predicate.
type Condition interface {
	// Match evaluates the predicate against one record instance.
	// It only reads its inputs, never mutates them.
	Match(record Fields, identity *access.Identity) bool

	// Where compiles the predicate into a SQL fragment narrowing a
	// collection query. Parameters are accumulated in the clause.
	Where(clause *Clause, identity *access.Identity) string
}

// Clause accumulates positional parameters for a compiled WHERE predicate.
// Column maps an internal field name to the SQL expression the store uses
// for it, so stores with different layouts can reuse the same conditions.
type Clause struct {
	column func(field string) string
	offset int
	args   []interface{}
}

// NewClause creates a clause. The column mapper may be nil, in which case
// field names are used as column names verbatim. The offset is the number
// of query parameters already bound by the caller.
func NewClause(column func(field string) string, offset int) *Clause {
	if column == nil {
		column = func(field string) string { return field }
	}
	return &Clause{column: column, offset: offset}
}

// Args returns the parameters bound so far, in placeholder order.
func (c *Clause) Args() []interface{} {
	return c.args
}

func (c *Clause) bind(value interface{}) string {
	c.args = append(c.args, value)
	return "$" + strconv.Itoa(c.offset+len(c.args))
}

type hasPermission struct {
	key string
}

// HasPermission requires the identity to carry the given permission key.
// An absent identity never matches; in query mode it narrows to nothing.
func HasPermission(key string) Condition {
	return hasPermission{key: key}
}

func (h hasPermission) Match(record Fields, identity *access.Identity) bool {
	return identity.HasPermission(h.key)
}

func (h hasPermission) Where(clause *Clause, identity *access.Identity) string {
	if identity.HasPermission(h.key) {
		return "TRUE"
	}
	return "FALSE"
}

type fieldEquals struct {
	field string
	value interface{}
}

// FieldEquals requires the record field to equal the given literal value.
func FieldEquals(field string, value interface{}) Condition {
	return fieldEquals{field: field, value: value}
}

func (f fieldEquals) Match(record Fields, identity *access.Identity) bool {
	value, ok := fieldOf(record, f.field)
	return ok && equal(value, f.value)
}

func (f fieldEquals) Where(clause *Clause, identity *access.Identity) string {
	return clause.column(f.field) + " = " + clause.bind(normalize(f.value))
}

type fieldEqualsIdentityField struct {
	field         string
	identityField string
}

// FieldEqualsIdentityField requires the record field to equal a named field
// of the acting identity. An absent identity or an identity without the
// named field never matches; in query mode it narrows to nothing.
func FieldEqualsIdentityField(field, identityField string) Condition {
	return fieldEqualsIdentityField{field: field, identityField: identityField}
}

func (f fieldEqualsIdentityField) Match(record Fields, identity *access.Identity) bool {
	expected, ok := identity.Field(f.identityField)
	if !ok {
		return false
	}
	value, ok := fieldOf(record, f.field)
	return ok && equal(value, expected)
}

func (f fieldEqualsIdentityField) Where(clause *Clause, identity *access.Identity) string {
	expected, ok := identity.Field(f.identityField)
	if !ok {
		return "FALSE"
	}
	return clause.column(f.field) + " = " + clause.bind(normalize(expected))
}

// HasOrganization requires the record field to equal the identity's
// "organization_id" field. This is the conventional naming alias: the
// record side may be a plain identifier field such as "id" (an
// organization's own id) or a foreign key such as "organization_id", the
// identity side is always the organization the principal belongs to.
func HasOrganization(field string) Condition {
	return FieldEqualsIdentityField(field, "organization_id")
}

type fieldIsNull struct {
	field string
}

// FieldIsNull requires the record field to be null.
func FieldIsNull(field string) Condition {
	return fieldIsNull{field: field}
}

func (f fieldIsNull) Match(record Fields, identity *access.Identity) bool {
	value, ok := fieldOf(record, f.field)
	return !ok || value == nil
}

func (f fieldIsNull) Where(clause *Clause, identity *access.Identity) string {
	return clause.column(f.field) + " IS NULL"
}

type fieldIsNotNull struct {
	field string
}

// FieldIsNotNull requires the record field to be present and not null.
func FieldIsNotNull(field string) Condition {
	return fieldIsNotNull{field: field}
}

func (f fieldIsNotNull) Match(record Fields, identity *access.Identity) bool {
	value, ok := fieldOf(record, f.field)
	return ok && value != nil
}

func (f fieldIsNotNull) Where(clause *Clause, identity *access.Identity) string {
	return clause.column(f.field) + " IS NOT NULL"
}

type all struct {
	children []Condition
}

// All is the conjunction of the given conditions. It requires at least
// 2 children and panics otherwise; this is a configuration error and
// fatal at startup.
func All(children ...Condition) Condition {
	if len(children) < 2 {
		panic("condition: All requires at least 2 conditions")
	}
	return all{children: children}
}

func (a all) Match(record Fields, identity *access.Identity) bool {
	for _, child := range a.children {
		if !child.Match(record, identity) {
			return false
		}
	}
	return true
}

func (a all) Where(clause *Clause, identity *access.Identity) string {
	return combine(a.children, " AND ", clause, identity)
}

type anyOf struct {
	children []Condition
}

// Any is the disjunction of the given conditions. It requires at least
// 2 children and panics otherwise; this is a configuration error and
// fatal at startup.
func Any(children ...Condition) Condition {
	if len(children) < 2 {
		panic("condition: Any requires at least 2 conditions")
	}
	return anyOf{children: children}
}

func (a anyOf) Match(record Fields, identity *access.Identity) bool {
	for _, child := range a.children {
		if child.Match(record, identity) {
			return true
		}
	}
	return false
}

func (a anyOf) Where(clause *Clause, identity *access.Identity) string {
	return combine(a.children, " OR ", clause, identity)
}

func combine(children []Condition, operator string, clause *Clause, identity *access.Identity) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = child.Where(clause, identity)
	}
	return "(" + strings.Join(parts, operator) + ")"
}

// Resolves reports whether the predicate can hold for at least one record
// given the identity: identity-only predicates are evaluated, record
// predicates are assumed satisfiable. Profile resolution calls this before
// any record exists; the resolved profile's condition is still enforced
// against the record afterwards.
func Resolves(c Condition, identity *access.Identity) bool {
	switch n := c.(type) {
	case hasPermission:
		return identity.HasPermission(n.key)
	case fieldEqualsIdentityField:
		_, ok := identity.Field(n.identityField)
		return ok
	case all:
		for _, child := range n.children {
			if !Resolves(child, identity) {
				return false
			}
		}
		return true
	case anyOf:
		for _, child := range n.children {
			if Resolves(child, identity) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// fieldOf reads a record field; a nil record has no fields. Conditions are
// also evaluated without a record during profile resolution.
func fieldOf(record Fields, name string) (interface{}, bool) {
	if record == nil {
		return nil, false
	}
	return record.Field(name)
}

// normalize converts uuid values to their string form so that identifiers
// compare equal regardless of whether they were parsed or kept as strings.
func normalize(value interface{}) interface{} {
	if u, ok := value.(uuid.UUID); ok {
		return u.String()
	}
	return value
}

// equal compares without panicking on uncomparable values such as JSON
// arrays or objects stored in a record field.
func equal(a, b interface{}) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}
