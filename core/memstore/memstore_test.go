package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
)

func contactDefinition() *jsonapi.Definition {
	return &jsonapi.Definition{
		Name: "Contact",
		Fields: []jsonapi.FieldSpec{
			{Name: "email", Required: true, Unique: true},
			{Name: "first_name"},
			{Name: "last_name"},
			{Name: "note", Virtual: true},
		},
		UniqueTogether: [][]string{{"first_name", "last_name"}},
	}
}

func newContact(def *jsonapi.Definition, email string) *jsonapi.Record {
	record := jsonapi.NewRecord(def)
	record.SetField("email", email)
	return record
}

func TestSaveAssignsIDAndPersists(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	record := newContact(def, "max@example.com")
	disposition, err := store.Save(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, jsonapi.Proceed, disposition)
	assert.NotEmpty(t, record.ID())
	assert.True(t, record.Persisted)

	loaded, err := store.Get(ctx, def, record.ID())
	require.NoError(t, err)
	email, _ := loaded.Field("email")
	assert.Equal(t, "max@example.com", email)
}

func TestGetUnknownID(t *testing.T) {
	store := New()
	_, err := store.Get(context.Background(), contactDefinition(), "nope")
	assert.Equal(t, jsonapi.ErrRecordNotFound, err)
}

func TestVirtualFieldsAreNotPersisted(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	record := newContact(def, "max@example.com")
	record.SetField("note", "scratch")
	_, err := store.Save(ctx, record)
	require.NoError(t, err)

	// the caller's record keeps the virtual field for hooks to consume
	assert.Equal(t, "scratch", record.StringField("note"))

	loaded, err := store.Get(ctx, def, record.ID())
	require.NoError(t, err)
	_, ok := loaded.Field("note")
	assert.False(t, ok)
}

func TestSaveValidates(t *testing.T) {
	store := New()
	def := contactDefinition()

	record := jsonapi.NewRecord(def)
	_, err := store.Save(context.Background(), record)
	require.Error(t, err)
	failure, ok := err.(*jsonapi.ValidationFailure)
	require.True(t, ok)
	assert.Equal(t, "email", failure.Field)
	assert.Equal(t, jsonapi.ValidationRequired, failure.Code)
}

func TestSaveEnforcesUnique(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	_, err := store.Save(ctx, newContact(def, "max@example.com"))
	require.NoError(t, err)

	_, err = store.Save(ctx, newContact(def, "max@example.com"))
	require.Error(t, err)
	failure, ok := err.(*jsonapi.ValidationFailure)
	require.True(t, ok)
	assert.Equal(t, "email", failure.Field)
	assert.Equal(t, jsonapi.ValidationNotUnique, failure.Code)

	// updating a record does not collide with itself
	first := newContact(def, "other@example.com")
	_, err = store.Save(ctx, first)
	require.NoError(t, err)
	first.SetField("first_name", "Max")
	_, err = store.Save(ctx, first)
	assert.NoError(t, err)
}

func TestSaveEnforcesUniqueTogether(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	first := newContact(def, "max@example.com")
	first.SetField("first_name", "Max")
	first.SetField("last_name", "Muster")
	_, err := store.Save(ctx, first)
	require.NoError(t, err)

	second := newContact(def, "max2@example.com")
	second.SetField("first_name", "Max")
	second.SetField("last_name", "Muster")
	_, err = store.Save(ctx, second)
	require.Error(t, err)
	failure, ok := err.(*jsonapi.ValidationFailure)
	require.True(t, ok)
	assert.Equal(t, jsonapi.ValidationNotUniqueTogether, failure.Code)
	assert.Equal(t, []string{"first_name", "last_name"}, failure.Params["fields"])
}

func TestUniqueTogetherIgnoresIncompleteTuples(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	// neither record fills the group; like NULLs under a unique index they
	// never conflict
	_, err := store.Save(ctx, newContact(def, "max@example.com"))
	require.NoError(t, err)
	_, err = store.Save(ctx, newContact(def, "erika@example.com"))
	require.NoError(t, err)

	// a partial tuple does not conflict with a complete one either
	full := newContact(def, "full@example.com")
	full.SetField("first_name", "Max")
	full.SetField("last_name", "Muster")
	_, err = store.Save(ctx, full)
	require.NoError(t, err)

	partial := newContact(def, "partial@example.com")
	partial.SetField("first_name", "Max")
	_, err = store.Save(ctx, partial)
	assert.NoError(t, err)
}

func TestListNarrowsWithCondition(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	a := newContact(def, "a@example.com")
	a.SetField("last_name", "Muster")
	b := newContact(def, "b@example.com")
	b.SetField("last_name", "Doe")
	for _, record := range []*jsonapi.Record{a, b} {
		_, err := store.Save(ctx, record)
		require.NoError(t, err)
	}

	records, err := store.List(ctx, def, condition.FieldEquals("last_name", "Muster"), nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	email, _ := records[0].Field("email")
	assert.Equal(t, "a@example.com", email)

	all, err := store.List(ctx, def, nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestHookErrorRollsBackDependentWrites(t *testing.T) {
	def := contactDefinition()
	cause := errors.New("boom")
	def.Hooks = jsonapi.Hooks{
		AfterSave: func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
			if record.StringField("email") != "max@example.com" {
				return jsonapi.Proceed, nil
			}
			// a dependent write that must disappear with the rollback
			dependent := newContact(record.Definition(), "dependent@example.com")
			if _, err := tx.Save(ctx, dependent); err != nil {
				return jsonapi.Proceed, err
			}
			return jsonapi.Proceed, cause
		},
	}
	store := New()
	ctx := context.Background()

	_, err := store.Save(ctx, newContact(def, "max@example.com"))
	assert.Equal(t, cause, err)

	records, err := store.List(ctx, def, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSuppressRollsBack(t *testing.T) {
	def := contactDefinition()
	def.Hooks = jsonapi.Hooks{
		AfterSave: func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, created bool) (jsonapi.Disposition, error) {
			return jsonapi.Suppress, nil
		},
	}
	store := New()
	ctx := context.Background()

	disposition, err := store.Save(ctx, newContact(def, "max@example.com"))
	require.NoError(t, err)
	assert.Equal(t, jsonapi.Suppress, disposition)

	records, err := store.List(ctx, def, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAfterSaveFailedReplacesCause(t *testing.T) {
	def := contactDefinition()
	replacement := errors.New("replacement")
	def.Hooks = jsonapi.Hooks{
		AfterSaveFailed: func(ctx context.Context, tx jsonapi.Store, record *jsonapi.Record, cause error) error {
			if _, ok := cause.(*jsonapi.ValidationFailure); ok {
				return replacement
			}
			return nil
		},
	}
	store := New()

	_, err := store.Save(context.Background(), jsonapi.NewRecord(def))
	assert.Equal(t, replacement, err)
}

func TestDelete(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	record := newContact(def, "max@example.com")
	_, err := store.Save(ctx, record)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, record))
	_, err = store.Get(ctx, def, record.ID())
	assert.Equal(t, jsonapi.ErrRecordNotFound, err)
	assert.Equal(t, jsonapi.ErrRecordNotFound, store.Delete(ctx, record))
}

func TestMutatingALoadedRecordDoesNotWriteThrough(t *testing.T) {
	store := New()
	def := contactDefinition()
	ctx := context.Background()

	record := newContact(def, "max@example.com")
	_, err := store.Save(ctx, record)
	require.NoError(t, err)

	loaded, err := store.Get(ctx, def, record.ID())
	require.NoError(t, err)
	loaded.SetField("email", "changed@example.com")

	again, err := store.Get(ctx, def, record.ID())
	require.NoError(t, err)
	email, _ := again.Field("email")
	assert.Equal(t, "max@example.com", email)
}
