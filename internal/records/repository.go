package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/sync/errgroup"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/platform/db"
)

// ErrSourceNotReady indicates the record tables are missing or unreadable.
var ErrSourceNotReady = errors.New("records: source not ready")

// Dates and amounts are read as text so malformed values reach the ingestor
// instead of failing the whole query.
const (
	querySales = `SELECT id::text, COALESCE(occurred_on::text, ''), COALESCE(actor_id::text, ''),
	COALESCE(amount::text, ''), COALESCE(quantity::text, ''), COALESCE(project_id::text, '')
FROM sales ORDER BY occurred_on, id`
	queryPayments = `SELECT id::text, COALESCE(paid_on::text, ''), COALESCE(actor_id::text, ''),
	COALESCE(amount::text, ''), COALESCE(sale_id::text, '')
FROM payments ORDER BY paid_on, id`
	queryTargets = `SELECT COALESCE(actor_id::text, ''), COALESCE(period_start::text, ''),
	COALESCE(period_kind::text, ''), COALESCE(amount::text, '')
FROM targets ORDER BY period_start, actor_id`
	queryProfiles = `SELECT id::text, COALESCE(display_name, ''), COALESCE(avatar_url, ''), COALESCE(role::text, ''),
	COALESCE(manager_id::text, ''), COALESCE(is_active, false), COALESCE(birthday::text, ''),
	COALESCE(marriage_anniversary::text, ''), COALESCE(join_date::text, '')
FROM profiles ORDER BY id`
)

// undefinedTable is the SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository loads dashboard snapshots from PostgreSQL.
type Repository struct {
	querier  Querier
	tx       db.TxBeginner
	ingestor *analytics.Ingestor
}

// NewRepository wires a Querier with the ingestor used to type rows. The four
// collections are read concurrently on separate connections.
func NewRepository(q Querier, ingestor *analytics.Ingestor) *Repository {
	if ingestor == nil {
		ingestor = analytics.NewIngestor(nil)
	}
	return &Repository{querier: q, ingestor: ingestor}
}

// NewConsistentRepository reads every collection inside one read-only
// transaction so payments never reference sales from a later snapshot.
func NewConsistentRepository(tx db.TxBeginner, ingestor *analytics.Ingestor) *Repository {
	if ingestor == nil {
		ingestor = analytics.NewIngestor(nil)
	}
	return &Repository{tx: tx, ingestor: ingestor}
}

// Load reads every collection and types it, returning the rejected row tally.
func (r *Repository) Load(ctx context.Context) (analytics.Snapshot, analytics.Rejections, error) {
	raw, err := r.LoadRaw(ctx)
	if err != nil {
		return analytics.Snapshot{}, analytics.Rejections{}, err
	}
	snap, rej := r.ingestor.Snapshot(raw)
	return snap, rej, nil
}

// LoadRaw reads the four collections without typing them.
func (r *Repository) LoadRaw(ctx context.Context) (analytics.RawSnapshot, error) {
	switch {
	case r == nil:
		return analytics.RawSnapshot{}, fmt.Errorf("records: load: %w", ErrSourceNotReady)
	case r.tx != nil:
		var raw analytics.RawSnapshot
		err := db.WithReadOnlyTx(ctx, r.tx, func(tx pgx.Tx) error {
			var err error
			raw, err = loadSequential(ctx, tx)
			return err
		})
		if err != nil {
			return analytics.RawSnapshot{}, wrapTxError(err)
		}
		return raw, nil
	case r.querier != nil:
		return loadConcurrent(ctx, r.querier)
	}
	return analytics.RawSnapshot{}, fmt.Errorf("records: load: %w", ErrSourceNotReady)
}

func loadConcurrent(ctx context.Context, q Querier) (analytics.RawSnapshot, error) {
	var raw analytics.RawSnapshot
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		raw.Sales, err = loadSales(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		raw.Payments, err = loadPayments(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		raw.Targets, err = loadTargets(ctx, q)
		return err
	})
	g.Go(func() (err error) {
		raw.Profiles, err = loadProfiles(ctx, q)
		return err
	})
	if err := g.Wait(); err != nil {
		return analytics.RawSnapshot{}, err
	}
	return raw, nil
}

// loadSequential is used inside a transaction, which serves one statement at a time.
func loadSequential(ctx context.Context, q Querier) (analytics.RawSnapshot, error) {
	var (
		raw analytics.RawSnapshot
		err error
	)
	if raw.Sales, err = loadSales(ctx, q); err != nil {
		return analytics.RawSnapshot{}, err
	}
	if raw.Payments, err = loadPayments(ctx, q); err != nil {
		return analytics.RawSnapshot{}, err
	}
	if raw.Targets, err = loadTargets(ctx, q); err != nil {
		return analytics.RawSnapshot{}, err
	}
	if raw.Profiles, err = loadProfiles(ctx, q); err != nil {
		return analytics.RawSnapshot{}, err
	}
	return raw, nil
}

func loadSales(ctx context.Context, q Querier) ([]analytics.SaleRow, error) {
	return collect(ctx, q, "sales", querySales, func(rows pgx.Rows) (analytics.SaleRow, error) {
		var row analytics.SaleRow
		err := rows.Scan(&row.ID, &row.OccurredOn, &row.ActorID, &row.Amount, &row.Quantity, &row.ProjectID)
		return row, err
	})
}

func loadPayments(ctx context.Context, q Querier) ([]analytics.PaymentRow, error) {
	return collect(ctx, q, "payments", queryPayments, func(rows pgx.Rows) (analytics.PaymentRow, error) {
		var row analytics.PaymentRow
		err := rows.Scan(&row.ID, &row.PaidOn, &row.ActorID, &row.Amount, &row.SaleID)
		return row, err
	})
}

func loadTargets(ctx context.Context, q Querier) ([]analytics.TargetRow, error) {
	return collect(ctx, q, "targets", queryTargets, func(rows pgx.Rows) (analytics.TargetRow, error) {
		var row analytics.TargetRow
		err := rows.Scan(&row.ActorID, &row.PeriodStart, &row.PeriodKind, &row.Amount)
		return row, err
	})
}

func loadProfiles(ctx context.Context, q Querier) ([]analytics.ProfileRow, error) {
	return collect(ctx, q, "profiles", queryProfiles, func(rows pgx.Rows) (analytics.ProfileRow, error) {
		var row analytics.ProfileRow
		err := rows.Scan(&row.ID, &row.DisplayName, &row.AvatarURL, &row.Role, &row.ManagerID,
			&row.IsActive, &row.Birthday, &row.MarriageAnniversary, &row.JoinDate)
		return row, err
	})
}

func collect[T any](ctx context.Context, q Querier, table, sql string, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := q.Query(ctx, sql)
	if err != nil {
		return nil, wrapQueryError(table, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("records: scan %s: %w", table, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryError(table, err)
	}
	return out, nil
}

func wrapTxError(err error) error {
	if errors.Is(err, ErrSourceNotReady) {
		return err
	}
	return fmt.Errorf("records: load: %w", err)
}

func wrapQueryError(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("records: query %s: %w: %s", table, ErrSourceNotReady, pgErr.Message)
	}
	return fmt.Errorf("records: query %s: %w", table, err)
}
