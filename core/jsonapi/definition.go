package jsonapi

import (
	"fmt"
	"regexp"

	"github.com/cantal-tech/jsonapi/core"
)

// FieldSpec declares one attribute of a resource definition together with
// its validation constraints.
type FieldSpec struct {
	Name string
	// Required fails validation with code "required" when the field is
	// unset or nil, and with code "blank" when it is an empty string.
	Required bool
	// MinLength and MaxLength constrain string lengths. A MinLength of 0
	// with Required still enforces a minimum length of 1 for strings.
	MinLength int
	MaxLength int
	// Pattern, if set, must match the string value; a mismatch fails with
	// code "invalid".
	Pattern *regexp.Regexp
	// Unique requests a uniqueness constraint on this field.
	Unique bool
	// Virtual fields are accepted and validated but never persisted; they
	// exist for hook consumption, e.g. raw passwords.
	Virtual bool
}

// Definition declares one resource type: its wire name, identifier field,
// attributes, relationships, per-action profiles and hook pipeline.
// Definitions are constructed once at startup and are immutable thereafter.
type Definition struct {
	// Name is the wire resource type, e.g. "Organization".
	Name string
	// Basename is the URL path segment. Defaults to the plural snake case
	// form of Name.
	Basename string
	// IDField is the name of the identifier field. Defaults to "id".
	IDField string
	// Fields declares the attributes and their validation constraints.
	Fields []FieldSpec
	// Relationships maps relationship names to their target resources.
	Relationships map[string]*Ref
	// UniqueTogether lists groups of fields that must be unique as a tuple.
	UniqueTogether [][]string

	// Per-action profile resolvers. A nil resolver rejects the action
	// with RequestMethodNotAllowedError.
	Create Resolver
	Read   Resolver
	Update Resolver
	Delete Resolver

	// Hooks is the explicit lifecycle pipeline invoked by the store.
	Hooks Hooks
}

func (d *Definition) idField() string {
	if d.IDField == "" {
		return "id"
	}
	return d.IDField
}

// Pathname returns the URL path segment of the resource collection; it is
// also the store's table name for the resource.
func (d *Definition) Pathname() string {
	if d.Basename == "" {
		return core.Plural(core.CamelCaseToSnakeCase(d.Name))
	}
	return d.Basename
}

// FieldSpec returns the declaration for a named field.
func (d *Definition) FieldSpec(name string) (*FieldSpec, bool) {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i], true
		}
	}
	return nil, false
}

// Ref is a reference to a resource definition. It either holds the
// definition directly, or the resource name of a definition that is looked
// up lazily through the registry. Deferred references exist to break
// configuration cycles between mutually related resources.
type Ref struct {
	Name       string
	Definition *Definition
}

// RefTo creates a direct resource reference.
func RefTo(definition *Definition) *Ref {
	return &Ref{Definition: definition}
}

// RefNamed creates a deferred resource reference, resolved through the
// registry on first use.
func RefNamed(name string) *Ref {
	return &Ref{Name: name}
}

// Resolve returns the referenced definition, looking deferred references up
// in the registry.
func (r *Ref) Resolve(registry *Registry) (*Definition, error) {
	if r.Definition != nil {
		return r.Definition, nil
	}
	definition, ok := registry.Lookup(r.Name)
	if !ok {
		return nil, fmt.Errorf("unresolved resource reference %q", r.Name)
	}
	return definition, nil
}

// Registry maps resource names to their definitions. It is populated at
// startup and read-only thereafter.
type Registry struct {
	definitions map[string]*Definition
	ordered     []*Definition
}

// NewRegistry creates a registry with the given definitions. It panics on
// duplicate resource names; this is a configuration error and fatal at
// startup.
func NewRegistry(definitions ...*Definition) *Registry {
	r := &Registry{definitions: make(map[string]*Definition)}
	r.Add(definitions...)
	return r
}

// Add registers further definitions. It panics on duplicates.
func (r *Registry) Add(definitions ...*Definition) {
	for _, definition := range definitions {
		if definition.Name == "" {
			panic("registry: definition without a name")
		}
		if _, ok := r.definitions[definition.Name]; ok {
			panic("registry: duplicate definition " + definition.Name)
		}
		r.definitions[definition.Name] = definition
		r.ordered = append(r.ordered, definition)
	}
}

// Lookup returns the definition for a resource name.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	definition, ok := r.definitions[name]
	return definition, ok
}

// Definitions returns all registered definitions in registration order.
func (r *Registry) Definitions() []*Definition {
	return r.ordered
}
