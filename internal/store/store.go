// ABOUTME: Generic scoped record store: CRUD, equality query, substring search
// ABOUTME: One implementation per capability set, driven by per-entity Descriptors

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ikailo/agentry/internal/entity"
)

// ErrNotFound is returned when a requested record does not exist, or when
// the caller is not allowed to see it. The two cases are deliberately
// indistinguishable.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a create collides with an existing id.
var ErrConflict = errors.New("record already exists")

// ErrInvalidQuery is returned when criteria or search fields name an
// unknown field.
var ErrInvalidQuery = errors.New("invalid query")

// ErrInvalidReference is returned when a write references an owner that
// does not exist.
var ErrInvalidReference = errors.New("invalid reference")

// Scanner is the subset of sql.Row/sql.Rows needed by Descriptor.Scan.
type Scanner interface {
	Scan(dest ...any) error
}

// Descriptor maps an entity type onto its table. Columns lists the
// mutable columns in Bind order; id, created_date, and owner_id are
// managed by the store itself and are immutable after creation.
type Descriptor[T entity.Record] struct {
	Table string

	// Columns are the mutable columns, in the order Bind produces values.
	Columns []string

	// Fields maps queryable field names to columns.
	Fields map[string]string

	// SearchFields maps searchable string field names to columns.
	SearchFields map[string]string

	// New returns an empty record for scanning and capability probing.
	New func() T

	// Bind extracts the values for Columns from a record.
	Bind func(rec T) []any

	// Scan populates a record from a row in select order:
	// id, created_date, [owner_id,] Columns...
	Scan func(row Scanner) (T, error)
}

// Store provides scoped access to one entity type.
type Store[T entity.Record] struct {
	db     *DB
	desc   Descriptor[T]
	logger *slog.Logger

	owned     bool
	shareable bool

	selectCols string
	insertSQL  string
	updateSQL  string
}

// NewStore builds a store for the given descriptor. The owned and
// public-aware operations are available only when the entity type
// implements the matching capability interface.
func NewStore[T entity.Record](db *DB, desc Descriptor[T]) *Store[T] {
	probe := any(desc.New())
	_, owned := probe.(entity.Owned)
	_, shareable := probe.(entity.Shareable)

	cols := []string{"id", "created_date"}
	if owned {
		cols = append(cols, "owner_id")
	}
	cols = append(cols, desc.Columns...)

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	sets := make([]string, len(desc.Columns))
	for i, c := range desc.Columns {
		sets[i] = c + " = ?"
	}

	return &Store[T]{
		db:         db,
		desc:       desc,
		logger:     db.logger.With("table", desc.Table),
		owned:      owned,
		shareable:  shareable,
		selectCols: strings.Join(cols, ", "),
		insertSQL:  "INSERT INTO " + desc.Table + " (" + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")",
		updateSQL:  "UPDATE " + desc.Table + " SET " + strings.Join(sets, ", ") + " WHERE id = ?",
	}
}

// NewRecord returns an empty record of the store's type.
func (s *Store[T]) NewRecord() T {
	return s.desc.New()
}

// SearchableFields returns the field names declared searchable, sorted.
func (s *Store[T]) SearchableFields() []string {
	out := make([]string, 0, len(s.desc.SearchFields))
	for f := range s.desc.SearchFields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Create persists a new record, assigning id and created_date when absent.
// A caller-supplied id that already exists fails with ErrConflict.
func (s *Store[T]) Create(ctx context.Context, rec T) (T, error) {
	var zero T
	if err := s.insert(ctx, s.db.sql, rec); err != nil {
		return zero, err
	}
	s.logger.Debug("created record", "id", rec.GetID())
	return rec, nil
}

// CreateMany persists a batch of records in one transaction.
func (s *Store[T]) CreateMany(ctx context.Context, recs []T) ([]T, error) {
	if len(recs) == 0 {
		return nil, nil
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range recs {
		if err := s.insert(ctx, tx, rec); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch create: %w", err)
	}

	s.logger.Debug("created records", "count", len(recs))
	return recs, nil
}

// execer abstracts *sql.DB and *sql.Tx for writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store[T]) insert(ctx context.Context, ex execer, rec T) error {
	if rec.GetID() == "" {
		rec.SetID(uuid.New().String())
	}
	if rec.GetCreatedDate().IsZero() {
		rec.SetCreatedDate(time.Now().UTC())
	}

	args := []any{rec.GetID(), formatTime(rec.GetCreatedDate())}
	if s.owned {
		args = append(args, nullString(any(rec).(entity.Owned).GetOwnerID()))
	}
	args = append(args, s.desc.Bind(rec)...)

	if _, err := ex.ExecContext(ctx, s.insertSQL, args...); err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%s %q: %w", s.desc.Table, rec.GetID(), ErrConflict)
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%s %q owner: %w", s.desc.Table, rec.GetID(), ErrInvalidReference)
		}
		return fmt.Errorf("inserting into %s: %w", s.desc.Table, err)
	}
	return nil
}

// Delete removes a record by id. Deleting a missing id is not an error;
// the bool reports whether the record existed.
func (s *Store[T]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx, "DELETE FROM "+s.desc.Table+" WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", s.desc.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Debug("deleted record", "id", id)
	}
	return n > 0, nil
}

// DeleteMany removes a batch of records. It returns true only if every id
// existed and was removed.
func (s *Store[T]) DeleteMany(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	q := "DELETE FROM " + s.desc.Table + " WHERE id IN (" + placeholders(len(ids)) + ")"
	res, err := s.db.sql.ExecContext(ctx, q, stringArgs(ids)...)
	if err != nil {
		return false, fmt.Errorf("deleting from %s: %w", s.desc.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	return n == int64(len(ids)), nil
}

// GetByID fetches a record without visibility scoping. This is the escape
// hatch for trusted internal callers; caller-facing routes must use
// GetOwnedByID.
func (s *Store[T]) GetByID(ctx context.Context, id string) (T, error) {
	return s.one(ctx, "id = ?", []any{id})
}

// GetOwnedByID fetches a record only when personID owns it, or when
// includePublic is set and the record is Public. Anything else behaves as
// not-found.
func (s *Store[T]) GetOwnedByID(ctx context.Context, id, personID string, includePublic bool) (T, error) {
	var zero T
	if !s.owned {
		return zero, fmt.Errorf("%s records have no owner: %w", s.desc.Table, ErrInvalidQuery)
	}
	clause, args := s.ownerClause(personID, includePublic)
	return s.one(ctx, "id = ? AND "+clause, append([]any{id}, args...))
}

// GetAll lists records without scoping, ordered by creation then id.
// A take of zero means unbounded.
func (s *Store[T]) GetAll(ctx context.Context, skip, take int) ([]T, error) {
	return s.list(ctx, "", nil, skip, take)
}

// GetAllOwned lists records owned by ownerID, optionally including
// Public records of other owners.
func (s *Store[T]) GetAllOwned(ctx context.Context, ownerID string, includePublic bool, skip, take int) ([]T, error) {
	if !s.owned {
		return nil, fmt.Errorf("%s records have no owner: %w", s.desc.Table, ErrInvalidQuery)
	}
	clause, args := s.ownerClause(ownerID, includePublic)
	return s.list(ctx, clause, args, skip, take)
}

// GetByIDs fetches a batch of records. Missing ids are silently omitted;
// result order follows creation order, not input order.
func (s *Store[T]) GetByIDs(ctx context.Context, ids []string) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.list(ctx, "id IN ("+placeholders(len(ids))+")", stringArgs(ids), 0, 0)
}

// Query lists records matching all criteria (field = value, ANDed).
// Unknown field names fail with ErrInvalidQuery.
func (s *Store[T]) Query(ctx context.Context, criteria map[string]any, skip, take int) ([]T, error) {
	clause, args, err := s.criteriaClause(criteria)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, clause, args, skip, take)
}

// QueryOwned lists records matching all criteria, scoped to ownerID with
// the usual includePublic widening.
func (s *Store[T]) QueryOwned(ctx context.Context, criteria map[string]any, ownerID string, includePublic bool, skip, take int) ([]T, error) {
	if !s.owned {
		return nil, fmt.Errorf("%s records have no owner: %w", s.desc.Table, ErrInvalidQuery)
	}
	clause, args, err := s.criteriaClause(criteria)
	if err != nil {
		return nil, err
	}
	ownClause, ownArgs := s.ownerClause(ownerID, includePublic)
	return s.list(ctx, clause+" AND "+ownClause, append(args, ownArgs...), skip, take)
}

// Search lists records where term occurs as a case-insensitive substring
// in any of the named fields. Fields must be declared searchable.
func (s *Store[T]) Search(ctx context.Context, fields []string, term string, skip, take int) ([]T, error) {
	clause, args, err := s.searchClause(fields, term)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, clause, args, skip, take)
}

// SearchOwned is Search with the ownership scoping of GetOwnedByID.
func (s *Store[T]) SearchOwned(ctx context.Context, fields []string, term, personID string, includePublic bool, skip, take int) ([]T, error) {
	if !s.owned {
		return nil, fmt.Errorf("%s records have no owner: %w", s.desc.Table, ErrInvalidQuery)
	}
	clause, args, err := s.searchClause(fields, term)
	if err != nil {
		return nil, err
	}
	ownClause, ownArgs := s.ownerClause(personID, includePublic)
	return s.list(ctx, clause+" AND "+ownClause, append(args, ownArgs...), skip, take)
}

// Update replaces the mutable fields of an existing record. Immutable
// fields (id, created_date, owner_id) in the input are ignored. A missing
// id fails with ErrNotFound.
func (s *Store[T]) Update(ctx context.Context, rec T) (T, error) {
	var zero T
	if rec.GetID() == "" {
		return zero, fmt.Errorf("update requires an id: %w", ErrNotFound)
	}

	args := append(s.desc.Bind(rec), rec.GetID())
	res, err := s.db.sql.ExecContext(ctx, s.updateSQL, args...)
	if err != nil {
		return zero, fmt.Errorf("updating %s: %w", s.desc.Table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return zero, fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return zero, fmt.Errorf("%s %q: %w", s.desc.Table, rec.GetID(), ErrNotFound)
	}

	s.logger.Debug("updated record", "id", rec.GetID())
	return s.GetByID(ctx, rec.GetID())
}

// UpdateMany updates a batch of records, each under Update semantics.
func (s *Store[T]) UpdateMany(ctx context.Context, recs []T) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		updated, err := s.Update(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, updated)
	}
	return out, nil
}

// ownerClause builds the visibility filter shared by all owned reads.
func (s *Store[T]) ownerClause(personID string, includePublic bool) (string, []any) {
	if includePublic && s.shareable {
		return "(owner_id = ? OR visibility = ?)", []any{personID, string(entity.VisibilityPublic)}
	}
	return "owner_id = ?", []any{personID}
}

func (s *Store[T]) criteriaClause(criteria map[string]any) (string, []any, error) {
	if len(criteria) == 0 {
		return "", nil, fmt.Errorf("criteria cannot be empty: %w", ErrInvalidQuery)
	}

	fields := make([]string, 0, len(criteria))
	for f := range criteria {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var conds []string
	var args []any
	for _, f := range fields {
		col, ok := s.desc.Fields[f]
		if !ok {
			return "", nil, fmt.Errorf("unknown field %q on %s: %w", f, s.desc.Table, ErrInvalidQuery)
		}
		conds = append(conds, col+" = ?")
		args = append(args, criteria[f])
	}
	return strings.Join(conds, " AND "), args, nil
}

func (s *Store[T]) searchClause(fields []string, term string) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("search fields cannot be empty: %w", ErrInvalidQuery)
	}
	if term == "" {
		return "", nil, fmt.Errorf("search term cannot be empty: %w", ErrInvalidQuery)
	}

	pattern := "%" + escapeLike(term) + "%"

	var conds []string
	var args []any
	for _, f := range fields {
		col, ok := s.desc.SearchFields[f]
		if !ok {
			return "", nil, fmt.Errorf("field %q on %s is not searchable: %w", f, s.desc.Table, ErrInvalidQuery)
		}
		conds = append(conds, "lower("+col+") LIKE lower(?) ESCAPE '\\'")
		args = append(args, pattern)
	}
	return "(" + strings.Join(conds, " OR ") + ")", args, nil
}

func (s *Store[T]) one(ctx context.Context, where string, args []any) (T, error) {
	var zero T
	q := "SELECT " + s.selectCols + " FROM " + s.desc.Table + " WHERE " + where
	row := s.db.sql.QueryRowContext(ctx, q, args...)
	rec, err := s.desc.Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s: %w", s.desc.Table, ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("querying %s: %w", s.desc.Table, err)
	}
	return rec, nil
}

func (s *Store[T]) list(ctx context.Context, where string, args []any, skip, take int) ([]T, error) {
	q := "SELECT " + s.selectCols + " FROM " + s.desc.Table
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY created_date, id"
	if take > 0 {
		q += " LIMIT ?"
		args = append(args, take)
	} else if skip > 0 {
		q += " LIMIT -1"
	}
	if skip > 0 {
		q += " OFFSET ?"
		args = append(args, skip)
	}

	rows, err := s.db.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.desc.Table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []T
	for rows.Next() {
		rec, err := s.desc.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.desc.Table, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", s.desc.Table, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// escapeLike escapes LIKE metacharacters in a search term.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
