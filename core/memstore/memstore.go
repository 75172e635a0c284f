/*Package memstore provides an in-memory store for tests and examples.

It implements the same contract as the postgres store: declarative
validation before persistence, uniqueness enforcement, the definition's
hook pipeline, and all-or-nothing persist operations including dependent
writes made by hooks.
*/
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

type table struct {
	order []string
	byID  map[string]*jsonapi.Record
}

func (t *table) clone() *table {
	c := &table{
		order: append([]string{}, t.order...),
		byID:  make(map[string]*jsonapi.Record, len(t.byID)),
	}
	for id, record := range t.byID {
		c.byID[id] = record.Clone()
	}
	return c
}

// Store is an in-memory implementation of jsonapi.Store.
type Store struct {
	mutex  sync.Mutex
	tables map[string]*table
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) table(definition *jsonapi.Definition) *table {
	t, ok := s.tables[definition.Name]
	if !ok {
		t = &table{byID: make(map[string]*jsonapi.Record)}
		s.tables[definition.Name] = t
	}
	return t
}

func (s *Store) snapshot() map[string]*table {
	snapshot := make(map[string]*table, len(s.tables))
	for name, t := range s.tables {
		snapshot[name] = t.clone()
	}
	return snapshot
}

// Get implements jsonapi.Store.
func (s *Store) Get(ctx context.Context, definition *jsonapi.Definition, id string) (*jsonapi.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return (&txStore{s}).Get(ctx, definition, id)
}

// List implements jsonapi.Store.
func (s *Store) List(ctx context.Context, definition *jsonapi.Definition, scope condition.Condition, identity *access.Identity) ([]*jsonapi.Record, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return (&txStore{s}).List(ctx, definition, scope, identity)
}

// Save implements jsonapi.Store. The record, its validation, its hooks and
// any dependent writes the hooks make are committed or rolled back as one.
func (s *Store) Save(ctx context.Context, record *jsonapi.Record) (jsonapi.Disposition, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	snapshot := s.snapshot()
	tx := &txStore{s}
	disposition, err := tx.save(ctx, record)
	if err != nil || disposition == jsonapi.Suppress {
		s.tables = snapshot
	}
	return disposition, err
}

// Delete implements jsonapi.Store.
func (s *Store) Delete(ctx context.Context, record *jsonapi.Record) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return (&txStore{s}).Delete(ctx, record)
}

// txStore is the in-transaction view handed to hooks. It operates on the
// live tables under the outer operation's lock; the outer Save restores a
// snapshot if anything fails.
type txStore struct {
	store *Store
}

func (tx *txStore) Get(ctx context.Context, definition *jsonapi.Definition, id string) (*jsonapi.Record, error) {
	t := tx.store.table(definition)
	record, ok := t.byID[id]
	if !ok {
		return nil, jsonapi.ErrRecordNotFound
	}
	return record.Clone(), nil
}

func (tx *txStore) List(ctx context.Context, definition *jsonapi.Definition, scope condition.Condition, identity *access.Identity) ([]*jsonapi.Record, error) {
	t := tx.store.table(definition)
	records := make([]*jsonapi.Record, 0, len(t.order))
	for _, id := range t.order {
		record := t.byID[id]
		if scope != nil && !scope.Match(record, identity) {
			continue
		}
		records = append(records, record.Clone())
	}
	return records, nil
}

func (tx *txStore) Save(ctx context.Context, record *jsonapi.Record) (jsonapi.Disposition, error) {
	return tx.save(ctx, record)
}

func (tx *txStore) Delete(ctx context.Context, record *jsonapi.Record) error {
	t := tx.store.table(record.Definition())
	id := record.ID()
	if _, ok := t.byID[id]; !ok {
		return jsonapi.ErrRecordNotFound
	}
	delete(t.byID, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

func (tx *txStore) save(ctx context.Context, record *jsonapi.Record) (jsonapi.Disposition, error) {
	definition := record.Definition()
	hooks := definition.Hooks

	if hooks.BeforeValidate != nil {
		if err := hooks.BeforeValidate(ctx, tx, record); err != nil {
			return jsonapi.Proceed, err
		}
	}

	if failure := definition.Validate(record); failure != nil {
		return jsonapi.Proceed, tx.failed(ctx, record, failure)
	}
	if failure := tx.checkUnique(record); failure != nil {
		return jsonapi.Proceed, tx.failed(ctx, record, failure)
	}

	created := !record.Persisted
	if record.ID() == "" {
		record.SetID(uuid.New().String())
	}
	record.Persisted = true

	t := tx.store.table(definition)
	id := record.ID()
	if _, ok := t.byID[id]; !ok {
		t.order = append(t.order, id)
	}
	t.byID[id] = persistedCopy(record)

	if hooks.AfterSave != nil {
		disposition, err := hooks.AfterSave(ctx, tx, record, created)
		if err != nil {
			return jsonapi.Proceed, tx.failed(ctx, record, err)
		}
		if disposition == jsonapi.Suppress {
			return jsonapi.Suppress, nil
		}
	}
	return jsonapi.Proceed, nil
}

func (tx *txStore) failed(ctx context.Context, record *jsonapi.Record, cause error) error {
	hooks := record.Definition().Hooks
	if hooks.AfterSaveFailed == nil {
		return cause
	}
	if err := hooks.AfterSaveFailed(ctx, tx, record, cause); err != nil {
		return err
	}
	return cause
}

// checkUnique enforces unique fields and unique-together groups the way the
// database would, reporting the first violation.
func (tx *txStore) checkUnique(record *jsonapi.Record) *jsonapi.ValidationFailure {
	definition := record.Definition()
	t := tx.store.table(definition)

	for _, spec := range definition.Fields {
		if !spec.Unique {
			continue
		}
		value, ok := record.Field(spec.Name)
		if !ok || value == nil || value == "" {
			continue
		}
		for _, id := range t.order {
			if id == record.ID() {
				continue
			}
			other, _ := t.byID[id].Field(spec.Name)
			if other == value {
				return &jsonapi.ValidationFailure{Field: spec.Name, Code: jsonapi.ValidationNotUnique}
			}
		}
	}

	for _, group := range definition.UniqueTogether {
		// tuples with an absent or null member never conflict, like rows
		// with NULLs under a unique index
		tuple := make([]interface{}, len(group))
		complete := true
		for i, field := range group {
			value, ok := record.Field(field)
			if !ok || value == nil {
				complete = false
				break
			}
			tuple[i] = value
		}
		if !complete {
			continue
		}
		for _, id := range t.order {
			if id == record.ID() {
				continue
			}
			same := true
			for i, field := range group {
				other, ok := t.byID[id].Field(field)
				if !ok || other == nil || other != tuple[i] {
					same = false
					break
				}
			}
			if same {
				return &jsonapi.ValidationFailure{
					Field:  group[0],
					Code:   jsonapi.ValidationNotUniqueTogether,
					Params: map[string]interface{}{"fields": group},
				}
			}
		}
	}
	return nil
}

// persistedCopy strips virtual fields from the stored copy; they exist for
// hook consumption only and are never persisted.
func persistedCopy(record *jsonapi.Record) *jsonapi.Record {
	copy := record.Clone()
	for _, spec := range record.Definition().Fields {
		if spec.Virtual {
			copy.DeleteField(spec.Name)
		}
	}
	return copy
}
