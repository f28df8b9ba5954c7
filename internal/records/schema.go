package records

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/salespulse/salespulse/internal/analytics"
)

// Schema creates the tables the record source reads. Amount and date columns are
// typed; the loader casts them back to text.
const Schema = `
CREATE TABLE IF NOT EXISTS profiles (
	id                   TEXT PRIMARY KEY,
	display_name         TEXT NOT NULL DEFAULT '',
	avatar_url           TEXT,
	role                 TEXT NOT NULL DEFAULT 'executive',
	manager_id           TEXT REFERENCES profiles(id),
	is_active            BOOLEAN NOT NULL DEFAULT TRUE,
	birthday             DATE,
	marriage_anniversary DATE,
	join_date            DATE
);
CREATE TABLE IF NOT EXISTS sales (
	id          TEXT PRIMARY KEY,
	occurred_on TIMESTAMPTZ NOT NULL,
	actor_id    TEXT REFERENCES profiles(id),
	amount      NUMERIC(18,2) NOT NULL DEFAULT 0,
	quantity    NUMERIC(18,4) NOT NULL DEFAULT 0,
	project_id  TEXT
);
CREATE INDEX IF NOT EXISTS sales_occurred_on_idx ON sales (occurred_on);
CREATE TABLE IF NOT EXISTS payments (
	id       TEXT PRIMARY KEY,
	paid_on  TIMESTAMPTZ NOT NULL,
	actor_id TEXT REFERENCES profiles(id),
	amount   NUMERIC(18,2) NOT NULL DEFAULT 0,
	sale_id  TEXT REFERENCES sales(id)
);
CREATE INDEX IF NOT EXISTS payments_paid_on_idx ON payments (paid_on);
CREATE TABLE IF NOT EXISTS targets (
	actor_id     TEXT NOT NULL REFERENCES profiles(id),
	period_start DATE NOT NULL,
	period_kind  TEXT NOT NULL CHECK (period_kind IN ('monthly', 'yearly')),
	amount       NUMERIC(18,2) NOT NULL DEFAULT 0,
	PRIMARY KEY (actor_id, period_start, period_kind)
);`

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Migrate applies Schema.
func Migrate(ctx context.Context, db Execer) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("records: migrate: %w", err)
	}
	return nil
}

const (
	insertProfile = `INSERT INTO profiles (id, display_name, avatar_url, role, manager_id, is_active, birthday, marriage_anniversary, join_date)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, NULLIF($7, '')::date, NULLIF($8, '')::date, NULLIF($9, '')::date)
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url, role = EXCLUDED.role,
	manager_id = EXCLUDED.manager_id, is_active = EXCLUDED.is_active, birthday = EXCLUDED.birthday,
	marriage_anniversary = EXCLUDED.marriage_anniversary, join_date = EXCLUDED.join_date`
	insertSale = `INSERT INTO sales (id, occurred_on, actor_id, amount, quantity, project_id)
VALUES ($1, $2::timestamptz, NULLIF($3, ''), $4::numeric, $5::numeric, NULLIF($6, ''))
ON CONFLICT (id) DO NOTHING`
	insertPayment = `INSERT INTO payments (id, paid_on, actor_id, amount, sale_id)
VALUES ($1, $2::timestamptz, NULLIF($3, ''), $4::numeric, NULLIF($5, ''))
ON CONFLICT (id) DO NOTHING`
	insertTarget = `INSERT INTO targets (actor_id, period_start, period_kind, amount)
VALUES ($1, $2::date, $3, $4::numeric)
ON CONFLICT (actor_id, period_start, period_kind) DO UPDATE SET amount = EXCLUDED.amount`
)

// Insert writes raw rows, profiles first so foreign keys resolve. Existing sales and
// payments are left untouched; profiles and targets are updated.
func Insert(ctx context.Context, db Execer, raw analytics.RawSnapshot) error {
	for _, p := range managersFirst(raw.Profiles) {
		if _, err := db.Exec(ctx, insertProfile, p.ID, p.DisplayName, p.AvatarURL, p.Role, p.ManagerID,
			p.IsActive, p.Birthday, p.MarriageAnniversary, p.JoinDate); err != nil {
			return fmt.Errorf("records: insert profile %s: %w", p.ID, err)
		}
	}
	for _, s := range raw.Sales {
		if _, err := db.Exec(ctx, insertSale, s.ID, s.OccurredOn, s.ActorID, s.Amount, s.Quantity, s.ProjectID); err != nil {
			return fmt.Errorf("records: insert sale %s: %w", s.ID, err)
		}
	}
	for _, p := range raw.Payments {
		if _, err := db.Exec(ctx, insertPayment, p.ID, p.PaidOn, p.ActorID, p.Amount, p.SaleID); err != nil {
			return fmt.Errorf("records: insert payment %s: %w", p.ID, err)
		}
	}
	for _, t := range raw.Targets {
		if _, err := db.Exec(ctx, insertTarget, t.ActorID, t.PeriodStart, t.PeriodKind, t.Amount); err != nil {
			return fmt.Errorf("records: insert target %s: %w", t.ActorID, err)
		}
	}
	return nil
}

// managersFirst orders profiles so every manager precedes its reports. Profiles whose
// manager never resolves keep their relative order at the end.
func managersFirst(profiles []analytics.ProfileRow) []analytics.ProfileRow {
	known := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		known[p.ID] = true
	}
	placed := make(map[string]bool, len(profiles))
	ordered := make([]analytics.ProfileRow, 0, len(profiles))
	pending := profiles
	for len(pending) > 0 {
		next := pending[:0:0]
		for _, p := range pending {
			if p.ManagerID == "" || p.ManagerID == p.ID || !known[p.ManagerID] || placed[p.ManagerID] {
				ordered = append(ordered, p)
				placed[p.ID] = true
				continue
			}
			next = append(next, p)
		}
		if len(next) == len(pending) {
			return append(ordered, next...)
		}
		pending = next
	}
	return ordered
}
