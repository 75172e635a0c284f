/*Package sqlstore persists resource records in PostgreSQL.

Each resource definition maps to one table in the service schema: the
identifier is a uuid primary key, every relationship becomes a uuid
column, and all remaining fields live in a json properties column.
Unique constraints are enforced with expression indexes whose names
encode the constrained fields, so constraint violations can be mapped
back to validation failures.
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cantal-tech/jsonapi/core/access"
	"github.com/cantal-tech/jsonapi/core/condition"
	"github.com/cantal-tech/jsonapi/core/csql"
	"github.com/cantal-tech/jsonapi/core/jsonapi"
	"github.com/cantal-tech/jsonapi/core/logger"
)

// Builder is a builder helper for the postgres store.
type Builder struct {
	// DB is the postgres database with the service schema. Must not be nil.
	DB *csql.DB
	// Registry holds the resource definitions to create tables for. Must
	// not be nil.
	Registry *jsonapi.Registry
}

// Store is a PostgreSQL implementation of jsonapi.Store.
type Store struct {
	db       *csql.DB
	registry *jsonapi.Registry
}

// MustNew creates the store and the tables and unique indexes for every
// registered resource definition. Configuration errors and failing
// statements are fatal at startup; MustNew panics on them.
func MustNew(b *Builder) *Store {
	if b.DB == nil {
		panic("sqlstore: no database")
	}
	if b.Registry == nil {
		panic("sqlstore: no registry")
	}
	s := &Store{db: b.DB, registry: b.Registry}
	for _, definition := range b.Registry.Definitions() {
		if err := s.createTable(definition); err != nil {
			panic(fmt.Sprintf("sqlstore: create table for %s: %s", definition.Name, err))
		}
	}
	return s
}

func (s *Store) createTable(definition *jsonapi.Definition) error {
	columns := []string{"id uuid NOT NULL DEFAULT uuid_generate_v4()"}
	for _, name := range relationshipNames(definition) {
		columns = append(columns, fmt.Sprintf("\"%s_id\" uuid", name))
	}
	columns = append(columns,
		"properties json NOT NULL DEFAULT'{}'::json",
		"created_at timestamp NOT NULL DEFAULT now()",
		"PRIMARY KEY(id)",
	)
	_, err := s.db.Query(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s(%s);",
		s.tableName(definition), strings.Join(columns, ", ")))
	if err != nil {
		return err
	}

	for _, spec := range definition.Fields {
		if !spec.Unique {
			continue
		}
		_, err = s.db.Query(fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS \"%s\" ON %s(%s);",
			uniqueIndexName(definition, spec.Name),
			s.tableName(definition),
			indexExpression(definition, spec.Name)))
		if err != nil {
			return err
		}
	}
	for _, group := range definition.UniqueTogether {
		expressions := make([]string, len(group))
		for i, field := range group {
			expressions[i] = indexExpression(definition, field)
		}
		_, err = s.db.Query(fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS \"%s\" ON %s(%s);",
			uniqueTogetherIndexName(definition, group),
			s.tableName(definition),
			strings.Join(expressions, ", ")))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) tableName(definition *jsonapi.Definition) string {
	return s.db.Schema + ".\"" + definition.Pathname() + "\""
}

// tableKey derives the identifier-safe part of constraint names from the
// resource pathname.
func tableKey(definition *jsonapi.Definition) string {
	replacer := strings.NewReplacer("/", "_", "-", "_")
	return replacer.Replace(definition.Pathname())
}

func uniqueIndexName(definition *jsonapi.Definition, field string) string {
	return "unique_" + tableKey(definition) + "_" + field
}

func uniqueTogetherIndexName(definition *jsonapi.Definition, group []string) string {
	return "unique_together_" + tableKey(definition) + "__" + strings.Join(group, "__")
}

func relationshipNames(definition *jsonapi.Definition) []string {
	names := make([]string, 0, len(definition.Relationships))
	for name := range definition.Relationships {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// indexExpression is the column or expression a unique index constrains.
func indexExpression(definition *jsonapi.Definition, field string) string {
	for _, name := range relationshipNames(definition) {
		if field == name+"_id" {
			return "\"" + field + "\""
		}
	}
	return "(properties->>'" + field + "')"
}

// whereExpression maps an internal field name to the SQL expression used in
// compiled authorization predicates. Identifier columns are compared as
// text because predicate parameters are bound as text.
func whereExpression(definition *jsonapi.Definition) func(field string) string {
	return func(field string) string {
		if field == "id" {
			return "id::text"
		}
		for _, name := range relationshipNames(definition) {
			if field == name+"_id" {
				return "\"" + field + "\"::text"
			}
		}
		return "(properties->>'" + field + "')"
	}
}

// Get implements jsonapi.Store.
func (s *Store) Get(ctx context.Context, definition *jsonapi.Definition, id string) (*jsonapi.Record, error) {
	return (&txStore{store: s, q: s.db.DB}).Get(ctx, definition, id)
}

// List implements jsonapi.Store.
func (s *Store) List(ctx context.Context, definition *jsonapi.Definition, scope condition.Condition, identity *access.Identity) ([]*jsonapi.Record, error) {
	return (&txStore{store: s, q: s.db.DB}).List(ctx, definition, scope, identity)
}

// Save implements jsonapi.Store. The record, its validation, its hooks and
// any dependent writes the hooks make run in one transaction; a hook
// returning Suppress rolls the transaction back.
func (s *Store) Save(ctx context.Context, record *jsonapi.Record) (jsonapi.Disposition, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return jsonapi.Proceed, err
	}
	disposition, err := (&txStore{store: s, q: tx}).save(ctx, record)
	if err != nil || disposition == jsonapi.Suppress {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			logger.Default().WithError(rollbackErr).Error("rollback failed")
		}
		return disposition, err
	}
	return jsonapi.Proceed, tx.Commit()
}

// Delete implements jsonapi.Store.
func (s *Store) Delete(ctx context.Context, record *jsonapi.Record) error {
	return (&txStore{store: s, q: s.db.DB}).Delete(ctx, record)
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// txStore is the store view bound to one transaction; it is what hooks
// receive, so their reads and writes join the surrounding operation.
type txStore struct {
	store *Store
	q     querier
}

func (tx *txStore) Get(ctx context.Context, definition *jsonapi.Definition, id string) (*jsonapi.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, jsonapi.ErrRecordNotFound
	}
	relationships := relationshipNames(definition)
	columns := []string{"id"}
	for _, name := range relationships {
		columns = append(columns, "\""+name+"_id\"")
	}
	columns = append(columns, "properties")

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1;",
		strings.Join(columns, ", "), tx.store.tableName(definition))
	return tx.scanRecord(ctx, definition, relationships, tx.q.QueryRowContext(ctx, query, id))
}

func (tx *txStore) List(ctx context.Context, definition *jsonapi.Definition, scope condition.Condition, identity *access.Identity) ([]*jsonapi.Record, error) {
	relationships := relationshipNames(definition)
	columns := []string{"id"}
	for _, name := range relationships {
		columns = append(columns, "\""+name+"_id\"")
	}
	columns = append(columns, "properties")

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), tx.store.tableName(definition))
	var args []interface{}
	if scope != nil {
		clause := condition.NewClause(whereExpression(definition), 0)
		query += " WHERE " + scope.Where(clause, identity)
		for _, arg := range clause.Args() {
			args = append(args, fmt.Sprint(arg))
		}
	}
	query += " ORDER BY created_at;"

	rows, err := tx.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*jsonapi.Record{}
	for rows.Next() {
		record, err := tx.scanRecord(ctx, definition, relationships, rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (tx *txStore) scanRecord(ctx context.Context, definition *jsonapi.Definition, relationships []string, row scanner) (*jsonapi.Record, error) {
	var id string
	relationshipIDs := make([]sql.NullString, len(relationships))
	var properties []byte

	dest := []interface{}{&id}
	for i := range relationshipIDs {
		dest = append(dest, &relationshipIDs[i])
	}
	dest = append(dest, &properties)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, jsonapi.ErrRecordNotFound
		}
		return nil, err
	}

	record := jsonapi.NewRecord(definition)
	record.Persisted = true
	record.SetID(id)

	fields := map[string]interface{}{}
	if err := json.Unmarshal(properties, &fields); err != nil {
		return nil, err
	}
	for name, value := range fields {
		record.SetField(name, value)
	}

	for i, name := range relationships {
		if !relationshipIDs[i].Valid {
			record.SetField(name+"_id", nil)
			record.SetRelationship(name, nil)
			continue
		}
		record.SetField(name+"_id", relationshipIDs[i].String)
		target, err := definition.Relationships[name].Resolve(tx.store.registry)
		if err != nil {
			return nil, err
		}
		related := jsonapi.NewRecord(target)
		related.Persisted = true
		related.SetID(relationshipIDs[i].String)
		record.SetRelationship(name, related)
	}
	return record, nil
}

func (tx *txStore) Save(ctx context.Context, record *jsonapi.Record) (jsonapi.Disposition, error) {
	return tx.save(ctx, record)
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

	created := !record.Persisted
	var err error
	if created {
		err = tx.insert(ctx, record)
	} else {
		err = tx.update(ctx, record)
	}
	if err != nil {
		if failure := uniqueViolation(definition, err); failure != nil {
			err = failure
		}
		return jsonapi.Proceed, tx.failed(ctx, record, err)
	}
	record.Persisted = true

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

func (tx *txStore) insert(ctx context.Context, record *jsonapi.Record) error {
	definition := record.Definition()
	if record.ID() == "" {
		record.SetID(uuid.New().String())
	}
	properties, err := json.Marshal(persistedFields(record))
	if err != nil {
		return err
	}

	columns := []string{"id"}
	args := []interface{}{record.ID()}
	for _, name := range relationshipNames(definition) {
		columns = append(columns, "\""+name+"_id\"")
		args = append(args, relationshipArg(record, name))
	}
	columns = append(columns, "properties")
	args = append(args, properties)

	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = "$" + fmt.Sprint(i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s);",
		tx.store.tableName(definition), strings.Join(columns, ", "), strings.Join(placeholders, ", "))
	_, err = tx.q.ExecContext(ctx, query, args...)
	return err
}

func (tx *txStore) update(ctx context.Context, record *jsonapi.Record) error {
	definition := record.Definition()
	properties, err := json.Marshal(persistedFields(record))
	if err != nil {
		return err
	}

	assignments := []string{}
	args := []interface{}{}
	for _, name := range relationshipNames(definition) {
		args = append(args, relationshipArg(record, name))
		assignments = append(assignments, fmt.Sprintf("\"%s_id\" = $%d", name, len(args)))
	}
	args = append(args, properties)
	assignments = append(assignments, fmt.Sprintf("properties = $%d", len(args)))
	args = append(args, record.ID())

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d;",
		tx.store.tableName(definition), strings.Join(assignments, ", "), len(args))
	result, err := tx.q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return jsonapi.ErrRecordNotFound
	}
	return nil
}

func (tx *txStore) Delete(ctx context.Context, record *jsonapi.Record) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1;", tx.store.tableName(record.Definition()))
	result, err := tx.q.ExecContext(ctx, query, record.ID())
	if err != nil {
		return err
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return jsonapi.ErrRecordNotFound
	}
	return nil
}

// failed runs the failure hook. The transaction may already be aborted by a
// failing statement, so the hook must not issue further writes here; the
// in-memory store has no such restriction.
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

// persistedFields returns the record fields destined for the properties
// column: everything except the identifier, the relationship identifier
// columns and virtual fields.
func persistedFields(record *jsonapi.Record) map[string]interface{} {
	definition := record.Definition()
	fields := record.Fields()
	delete(fields, "id")
	for _, name := range relationshipNames(definition) {
		delete(fields, name+"_id")
	}
	for _, spec := range definition.Fields {
		if spec.Virtual {
			delete(fields, spec.Name)
		}
	}
	return fields
}

func relationshipArg(record *jsonapi.Record, name string) interface{} {
	value, ok := record.Field(name + "_id")
	if !ok || value == nil {
		return nil
	}
	return fmt.Sprint(value)
}

// uniqueViolation maps a postgres unique constraint violation back to the
// validation failure of the constrained field, using the constraint naming
// convention established at table creation.
func uniqueViolation(definition *jsonapi.Definition, err error) *jsonapi.ValidationFailure {
	pqErr, ok := err.(*pq.Error)
	if !ok || pqErr.Code != "23505" {
		return nil
	}
	for _, spec := range definition.Fields {
		if spec.Unique && pqErr.Constraint == uniqueIndexName(definition, spec.Name) {
			return &jsonapi.ValidationFailure{Field: spec.Name, Code: jsonapi.ValidationNotUnique}
		}
	}
	for _, group := range definition.UniqueTogether {
		if pqErr.Constraint == uniqueTogetherIndexName(definition, group) {
			return &jsonapi.ValidationFailure{
				Field:  group[0],
				Code:   jsonapi.ValidationNotUniqueTogether,
				Params: map[string]interface{}{"fields": group},
			}
		}
	}
	return nil
}
