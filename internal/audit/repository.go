package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/stockroom/stockroom/internal/platform/db"
)

// Repository reads audit_logs.
type Repository interface {
	// Window returns at most limit rows starting at offset, newest first.
	Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error)
	// All returns every matching row, newest first.
	All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error)
}

type pgRepository struct {
	conn db.DBTX
}

// NewRepository returns a Postgres backed Repository.
func NewRepository(conn db.DBTX) Repository {
	return &pgRepository{conn: conn}
}

func (r *pgRepository) Window(ctx context.Context, filters TimelineFilters, offset, limit int) ([]TimelineRow, error) {
	query, args := timelineQuery(filters)
	args = append(args, limit, offset)
	query += " LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	return r.scan(ctx, query, args...)
}

func (r *pgRepository) All(ctx context.Context, filters TimelineFilters) ([]TimelineRow, error) {
	query, args := timelineQuery(filters)
	return r.scan(ctx, query, args...)
}

func timelineQuery(f TimelineFilters) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT a.occurred_at, a.actor_id, COALESCE(u.email, ''), a.action, a.entity, a.entity_id, a.meta
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id
WHERE a.organisation_id = $1`)
	args := []any{f.OrganisationID}
	add := func(clause string, value any) {
		args = append(args, value)
		b.WriteString(" AND " + clause + " $" + strconv.Itoa(len(args)))
	}
	if !f.From.IsZero() {
		add("a.occurred_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("a.occurred_at <", f.To)
	}
	if f.ActorID > 0 {
		add("a.actor_id =", f.ActorID)
	}
	if f.Entity != "" {
		add("a.entity =", f.Entity)
	}
	if f.EntityID != "" {
		add("a.entity_id =", f.EntityID)
	}
	if f.Action != "" {
		add("a.action =", f.Action)
	}
	b.WriteString(" ORDER BY a.occurred_at DESC, a.id DESC")
	return b.String(), args
}

func (r *pgRepository) scan(ctx context.Context, query string, args ...any) ([]TimelineRow, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row  TimelineRow
			meta []byte
		)
		if err := rows.Scan(&row.At, &row.ActorID, &row.ActorEmail, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &row.Meta); err != nil {
				return nil, err
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
