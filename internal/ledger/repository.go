package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekogravitycat/bookshare-backend/internal/db"
)

// Repository is the durable loan ledger. Calls made with a transactional
// context (see db.TxRunner) take part in that transaction.
type Repository interface {
	Save(ctx context.Context, e *Entry) error
	SaveAll(ctx context.Context, entries []*Entry) error
	// Update persists outcome and timestamps, guarded on the outcome the
	// caller read. A concurrent decision yields ErrAlreadyDecided.
	Update(ctx context.Context, e *Entry, prev *Outcome) error
	// FindOpenByResource returns the pending or LOANED entry of a resource.
	FindOpenByResource(ctx context.Context, resourceID string) (*Entry, error)
	FindPendingByRequester(ctx context.Context, resourceID, requesterID string) (*Entry, error)
	// FindCurrentOccupant returns the LOANED entry of a resource.
	FindCurrentOccupant(ctx context.Context, resourceID string) (*Entry, error)
	List(ctx context.Context, filter Filter) ([]*Entry, int, error)
}

var entryColumns = []string{
	"id", "resource_id", "requester_id", "loan_days",
	"loan_started_at", "returned_at", "outcome", "created_at", "updated_at",
}

type pgxRepository struct {
	pool *pgxpool.Pool
}

func NewPgxRepository(pool *pgxpool.Pool) Repository {
	return &pgxRepository{pool: pool}
}

func (r *pgxRepository) Save(ctx context.Context, e *Entry) error {
	return r.SaveAll(ctx, []*Entry{e})
}

func (r *pgxRepository) SaveAll(ctx context.Context, entries []*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Insert("public.loan_entries").Columns(entryColumns...)
	for _, e := range entries {
		builder = builder.Values(
			e.ID, e.ResourceID, e.RequesterID, e.LoanDays,
			e.LoanStartedAt, e.ReturnedAt, e.Outcome, e.CreatedAt, e.UpdatedAt,
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build insert loan entries query failed: %w", err)
	}

	if _, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrOpenEntryExists.With(err)
		}
		return fmt.Errorf("insert loan entries failed: %w", err)
	}
	return nil
}

func (r *pgxRepository) Update(ctx context.Context, e *Entry, prev *Outcome) error {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	builder := psql.Update("public.loan_entries").
		Set("outcome", e.Outcome).
		Set("loan_started_at", e.LoanStartedAt).
		Set("returned_at", e.ReturnedAt).
		Set("updated_at", e.UpdatedAt).
		Where(squirrel.Eq{"id": e.ID})
	if prev == nil {
		builder = builder.Where(squirrel.Eq{"outcome": nil})
	} else {
		builder = builder.Where(squirrel.Eq{"outcome": *prev})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update loan entry query failed: %w", err)
	}

	tag, err := db.Conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update loan entry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: entry %s changed concurrently", ErrAlreadyDecided, e.ID)
	}
	return nil
}

func (r *pgxRepository) FindOpenByResource(ctx context.Context, resourceID string) (*Entry, error) {
	return r.findOne(ctx, squirrel.And{
		squirrel.Eq{"resource_id": resourceID},
		squirrel.Or{squirrel.Eq{"outcome": nil}, squirrel.Eq{"outcome": OutcomeLoaned}},
	})
}

func (r *pgxRepository) FindPendingByRequester(ctx context.Context, resourceID, requesterID string) (*Entry, error) {
	return r.findOne(ctx, squirrel.Eq{
		"resource_id":  resourceID,
		"requester_id": requesterID,
		"outcome":      nil,
	})
}

func (r *pgxRepository) FindCurrentOccupant(ctx context.Context, resourceID string) (*Entry, error) {
	return r.findOne(ctx, squirrel.Eq{
		"resource_id": resourceID,
		"outcome":     OutcomeLoaned,
	})
}

func (r *pgxRepository) findOne(ctx context.Context, where squirrel.Sqlizer) (*Entry, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query, args, err := psql.Select(entryColumns...).
		From("public.loan_entries").
		Where(where).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find loan entry query failed: %w", err)
	}

	var e Entry
	err = db.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(
		&e.ID, &e.ResourceID, &e.RequesterID, &e.LoanDays,
		&e.LoanStartedAt, &e.ReturnedAt, &e.Outcome, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find loan entry failed: %w", err)
	}
	return &e, nil
}

func (r *pgxRepository) List(ctx context.Context, filter Filter) ([]*Entry, int, error) {
	psql := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	query := psql.Select(append(entryColumns, "count(*) OVER() AS total_count")...).
		From("public.loan_entries")

	if filter.ResourceID != "" {
		query = query.Where(squirrel.Eq{"resource_id": filter.ResourceID})
	}
	if filter.RequesterID != "" {
		query = query.Where(squirrel.Eq{"requester_id": filter.RequesterID})
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	offset := (filter.Page - 1) * filter.PageSize

	sql, args, err := query.OrderBy("created_at DESC", "id").
		Limit(uint64(filter.PageSize)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build list loan entries query failed: %w", err)
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list loan entries failed: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	var total int
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.ResourceID, &e.RequesterID, &e.LoanDays,
			&e.LoanStartedAt, &e.ReturnedAt, &e.Outcome, &e.CreatedAt, &e.UpdatedAt,
			&total,
		); err != nil {
			return nil, 0, fmt.Errorf("scan loan entry failed: %w", err)
		}
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list loan entries failed: %w", err)
	}

	return result, total, nil
}
