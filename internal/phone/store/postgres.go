package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"phones/internal/phone/models"
	"phones/pkg/platform/sentinel"
)

// Postgres persists phone rows and the owner-type registry in PostgreSQL.
// Filter input never reaches the SQL text directly: column names come from
// the allowlist below and every value travels as a cast parameter.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed phone store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const phoneColumns = `id, created_at, updated_at, entity, type, country, number, metadata, confirmed, "primary", description`

// column and parameter-cast per filterable field.
var filterColumns = map[string]struct {
	col  string
	cast string
}{
	"id":        {"id", "::uuid"},
	"entity":    {"entity", "::uuid"},
	"createdAt": {"created_at", "::timestamptz"},
	"updatedAt": {"updated_at", "::timestamptz"},
	"type":      {"type", "::text"},
	"country":   {"country", "::text"},
	"number":    {"number", "::text"},
	"primary":   {`"primary"`, "::boolean"},
	"confirmed": {"confirmed", "::boolean"},
}

func (s *Postgres) List(ctx context.Context, f models.ListFilter) (*models.ListResult, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, c := range f.Where {
		fc, ok := filterColumns[c.Field]
		if !ok {
			return nil, fmt.Errorf("list phones: unknown filter field %q", c.Field)
		}
		switch c.Op {
		case models.OpIn:
			conds = append(conds, fmt.Sprintf("%s = ANY(%s%s[])", fc.col, arg(pq.Array(c.Values)), fc.cast))
		case models.OpNotIn:
			conds = append(conds, fmt.Sprintf("%s <> ALL(%s%s[])", fc.col, arg(pq.Array(c.Values)), fc.cast))
		case models.OpLike:
			conds = append(conds, fmt.Sprintf("%s ILIKE %s", fc.col, arg(c.Values[0])))
		case models.OpEq, models.OpNotEq, models.OpGt, models.OpGte, models.OpLt, models.OpLte:
			conds = append(conds, fmt.Sprintf("%s %s %s%s", fc.col, c.Op, arg(c.Values[0]), fc.cast))
		default:
			return nil, fmt.Errorf("list phones: unknown operator %q", c.Op)
		}
	}

	if f.Search != "" {
		needle := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf(
			"(number ILIKE %[1]s OR country ILIKE %[1]s OR description ILIKE %[1]s)", needle))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, count(*) OVER () AS total_count FROM phones", phoneColumns)
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}

	if len(f.OrderBy) > 0 {
		var orders []string
		for _, o := range f.OrderBy {
			fc, ok := filterColumns[o.Field]
			if !ok {
				return nil, fmt.Errorf("list phones: unknown order field %q", o.Field)
			}
			dir := "ASC"
			if o.Direction == models.OrderDesc {
				dir = "DESC"
			}
			orders = append(orders, fc.col+" "+dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(orders, ", "))
	}

	limit := f.Limit
	if limit == 0 {
		limit = 1
	}
	if limit > 0 {
		b.WriteString(" LIMIT " + arg(limit))
	}
	b.WriteString(" OFFSET " + arg(f.Offset))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list phones: %w", err)
	}
	defer rows.Close()

	result := &models.ListResult{
		Nodes:   []models.Phone{},
		Limit:   limit,
		Offset:  f.Offset,
		OrderBy: f.OrderBy,
		Where:   f.Where,
	}
	for rows.Next() {
		p, total, err := scanPhone(rows)
		if err != nil {
			return nil, fmt.Errorf("list phones: %w", err)
		}
		result.TotalCount = total
		result.Nodes = append(result.Nodes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list phones: %w", err)
	}
	return result, nil
}

func (s *Postgres) Upsert(ctx context.Context, phones []models.Phone) error {
	return s.upsert(ctx, s.db, phones)
}

// UpsertAndDelete applies a replace diff atomically: the batch upsert and the
// removal of stale rows either both land or neither does.
func (s *Postgres) UpsertAndDelete(ctx context.Context, phones []models.Phone, deleteIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace phones: begin: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsert(ctx, tx, phones); err != nil {
		return err
	}
	if len(deleteIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM phones WHERE id = ANY($1::uuid[])", pq.Array(uuidStrings(deleteIDs))); err != nil {
			return fmt.Errorf("replace phones: delete stale rows: %w", translatePQ(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace phones: commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) upsert(ctx context.Context, db execer, phones []models.Phone) error {
	if len(phones) == 0 {
		return nil
	}

	var (
		values []string
		args   []any
	)
	for _, p := range phones {
		meta, err := marshalMetaData(p.MetaData)
		if err != nil {
			return fmt.Errorf("upsert phones: metadata for %s: %w", p.ID, err)
		}
		base := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11))
		args = append(args, p.ID, p.CreatedAt, p.UpdatedAt, p.Entity, p.Type, p.Country,
			p.Number, meta, p.Confirmed, p.Primary, nullString(p.Description))
	}

	// created_at is deliberately absent from the update list: the first-ever
	// value survives every subsequent upsert of the same id.
	query := fmt.Sprintf(`
		INSERT INTO phones (%s)
		VALUES %s
		ON CONFLICT (id) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			entity = EXCLUDED.entity,
			type = EXCLUDED.type,
			country = EXCLUDED.country,
			number = EXCLUDED.number,
			metadata = EXCLUDED.metadata,
			confirmed = EXCLUDED.confirmed,
			"primary" = EXCLUDED."primary",
			description = EXCLUDED.description`,
		phoneColumns, strings.Join(values, ", "))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert phones: %w", translatePQ(err))
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, phone models.Phone) error {
	meta, err := marshalMetaData(phone.MetaData)
	if err != nil {
		return fmt.Errorf("update phone %s: metadata: %w", phone.ID, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE phones SET
			updated_at = $2, entity = $3, type = $4, country = $5, number = $6,
			metadata = $7, confirmed = $8, "primary" = $9, description = $10
		WHERE id = $1`,
		phone.ID, phone.UpdatedAt, phone.Entity, phone.Type, phone.Country,
		phone.Number, meta, phone.Confirmed, phone.Primary, nullString(phone.Description))
	if err != nil {
		return fmt.Errorf("update phone %s: %w", phone.ID, translatePQ(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update phone %s: %w", phone.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update phone %s: %w", phone.ID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM phones WHERE id = ANY($1::uuid[])", pq.Array(uuidStrings(ids))); err != nil {
		return fmt.Errorf("delete phones: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteByEntities(ctx context.Context, entityIDs []uuid.UUID) error {
	if len(entityIDs) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM phones WHERE entity = ANY($1::uuid[])", pq.Array(uuidStrings(entityIDs))); err != nil {
		return fmt.Errorf("delete phones by entity: %w", err)
	}
	return nil
}

// RebaseTypes reconciles the registry to exactly types plus the void
// sentinel: missing tags are inserted, surplus tags removed, in one
// transaction. Removing a tag still referenced by a phone row fails on the
// foreign key and surfaces as a conflict.
func (s *Postgres) RebaseTypes(ctx context.Context, types []string) error {
	desired := append([]string{models.VoidEntityType}, types...)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rebase types: begin: %w", err)
	}
	defer tx.Rollback()

	var values []string
	var args []any
	for i, t := range desired {
		values = append(values, fmt.Sprintf("($%d)", i+1))
		args = append(args, t)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO phone_entity_types (type) VALUES %s ON CONFLICT (type) DO NOTHING",
		strings.Join(values, ", ")), args...); err != nil {
		return fmt.Errorf("rebase types: insert: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM phone_entity_types WHERE type <> ALL($1::text[])", pq.Array(desired)); err != nil {
		if isPQCode(err, "23503") {
			return fmt.Errorf("rebase types: removed type still referenced: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("rebase types: delete: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rebase types: commit: %w", err)
	}
	return nil
}

func (s *Postgres) ListTypes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT type FROM phone_entity_types ORDER BY type")
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("list types: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	return types, nil
}

func scanPhone(rows *sql.Rows) (models.Phone, int, error) {
	var (
		p           models.Phone
		meta        []byte
		description sql.NullString
		total       int
	)
	if err := rows.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt, &p.Entity, &p.Type, &p.Country,
		&p.Number, &meta, &p.Confirmed, &p.Primary, &description, &total); err != nil {
		return models.Phone{}, 0, err
	}
	if description.Valid {
		p.Description = &description.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &p.MetaData); err != nil {
			return models.Phone{}, 0, fmt.Errorf("decode metadata for %s: %w", p.ID, err)
		}
	}
	if p.MetaData == nil {
		p.MetaData = []json.RawMessage{}
	}
	return p, total, nil
}

func marshalMetaData(meta []json.RawMessage) ([]byte, error) {
	if meta == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(meta)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// translatePQ maps driver constraint violations onto sentinel errors so the
// service never inspects pq codes.
func translatePQ(err error) error {
	switch {
	case isPQCode(err, "23503"):
		return fmt.Errorf("%v: %w", err, sentinel.ErrInvalidReference)
	case isPQCode(err, "23505"):
		return fmt.Errorf("%v: %w", err, sentinel.ErrConflict)
	default:
		return err
	}
}

func isPQCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}
