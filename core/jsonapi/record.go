package jsonapi

// Record is the internal, mutable representation of one persisted entity.
// It is a keyed bag of named fields plus references to related records.
// Records are created, mutated and destroyed per request by the store; the
// engine only reads and writes fields on them during transformation.
type Record struct {
	// Persisted is true if the record has been loaded from or written to
	// the store. Managed by the store.
	Persisted bool

	definition    *Definition
	fields        map[string]interface{}
	relationships map[string]*Record
}

// NewRecord creates an empty record of the given resource definition.
func NewRecord(definition *Definition) *Record {
	return &Record{
		definition:    definition,
		fields:        make(map[string]interface{}),
		relationships: make(map[string]*Record),
	}
}

// Definition returns the resource definition this record belongs to.
func (r *Record) Definition() *Definition {
	return r.definition
}

// Field returns the value of a named field; the second return value is
// false if the field was never set.
func (r *Record) Field(name string) (interface{}, bool) {
	value, ok := r.fields[name]
	return value, ok
}

// SetField sets the value of a named field.
func (r *Record) SetField(name string, value interface{}) {
	r.fields[name] = value
}

// DeleteField removes a named field.
func (r *Record) DeleteField(name string) {
	delete(r.fields, name)
}

// StringField returns the value of a named field as string. It returns the
// empty string if the field is unset or not a string.
func (r *Record) StringField(name string) string {
	value, ok := r.fields[name]
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// ID returns the record's identifier, using the definition's configured
// identifier field.
func (r *Record) ID() string {
	return r.StringField(r.definition.idField())
}

// SetID sets the record's identifier.
func (r *Record) SetID(id string) {
	r.fields[r.definition.idField()] = id
}

// Relationship returns the related record reference for a named
// relationship. The second return value is false if the relationship was
// never set; a true with a nil record means the relationship was cleared.
func (r *Record) Relationship(name string) (*Record, bool) {
	related, ok := r.relationships[name]
	return related, ok
}

// SetRelationship sets the related record reference for a named
// relationship. A nil record clears the relationship.
func (r *Record) SetRelationship(name string, related *Record) {
	r.relationships[name] = related
}

// Fields returns a copy of all named fields.
func (r *Record) Fields() map[string]interface{} {
	fields := make(map[string]interface{}, len(r.fields))
	for name, value := range r.fields {
		fields[name] = value
	}
	return fields
}

// Clone returns a copy of the record. Field values are copied, related
// record references are shared.
func (r *Record) Clone() *Record {
	clone := NewRecord(r.definition)
	clone.Persisted = r.Persisted
	for name, value := range r.fields {
		clone.fields[name] = value
	}
	for name, related := range r.relationships {
		clone.relationships[name] = related
	}
	return clone
}
