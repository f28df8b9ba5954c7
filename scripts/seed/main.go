package main

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/salespulse/salespulse/internal/analytics"
	"github.com/salespulse/salespulse/internal/app"
	"github.com/salespulse/salespulse/internal/dashboard"
	"github.com/salespulse/salespulse/internal/platform/cache"
	"github.com/salespulse/salespulse/internal/platform/db"
	"github.com/salespulse/salespulse/internal/records"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{ApplicationName: "salespulse-seed"})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying schema...")
	if err := records.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	now := time.Now().In(cfg.Location())
	raw := demoSnapshot(now, rand.New(rand.NewPCG(42, uint64(now.Year()))))
	fmt.Printf("→ Seeding %d profiles, %d sales, %d payments, %d targets...\n",
		len(raw.Profiles), len(raw.Sales), len(raw.Payments), len(raw.Targets))
	if err := db.WithTx(ctx, pool, func(tx pgx.Tx) error {
		return records.Insert(ctx, tx, raw)
	}); err != nil {
		log.Fatalf("seed records: %v", err)
	}

	if client, err := cache.New(ctx, cfg.RedisAddr); err == nil {
		version, err := dashboard.NewNotifier(client).Bump(ctx)
		if err != nil {
			log.Printf("bump snapshot version: %v", err)
		} else {
			fmt.Println("→ Snapshot version", version)
		}
		_ = client.Close()
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

type person struct {
	id, name, role, manager string
	born, married, joined   time.Time
}

// demoSnapshot builds two teams with fifteen months of sales history ending today.
func demoSnapshot(now time.Time, rng *rand.Rand) analytics.RawSnapshot {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, now.Location()) }
	people := []person{
		{id: "admin", name: "Admin", role: "admin", joined: day(2018, 1, 2)},
		{id: "mgr-north", name: "Maya Putri", role: "manager", born: day(1984, now.Month(), min(now.Day()+3, 28)), joined: day(2016, 4, 11)},
		{id: "mgr-south", name: "Bayu Santoso", role: "manager", born: day(1988, 2, 29), joined: day(2019, now.Month(), min(now.Day()+10, 28))},
		{id: "exec-ari", name: "Ari Wibowo", role: "executive", manager: "mgr-north", born: day(1993, 7, 14), married: day(2020, now.Month(), min(now.Day()+1, 28)), joined: day(2021, 8, 1)},
		{id: "exec-dewi", name: "Dewi Lestari", role: "executive", manager: "mgr-north", born: day(1995, 11, 3), joined: day(2022, 3, 15)},
		{id: "exec-eka", name: "Eka Pratama", role: "executive", manager: "mgr-south", born: day(1991, 5, 21), joined: day(2020, 1, 6)},
		{id: "exec-fajar", name: "Fajar Nugroho", role: "executive", manager: "mgr-south", born: day(1997, 9, 9), joined: now.AddDate(0, -3, 0)},
	}

	var raw analytics.RawSnapshot
	for _, p := range people {
		raw.Profiles = append(raw.Profiles, analytics.ProfileRow{
			ID:                  p.id,
			DisplayName:         p.name,
			AvatarURL:           "https://avatars.example/" + p.id + ".png",
			Role:                p.role,
			ManagerID:           p.manager,
			IsActive:            true,
			Birthday:            dateOrEmpty(p.born),
			MarriageAnniversary: dateOrEmpty(p.married),
			JoinDate:            dateOrEmpty(p.joined),
		})
	}

	sellers := people[1:]
	start := analytics.StartOfMonth(now).AddDate(0, -14, 0)
	for d := start; !d.After(now); d = d.AddDate(0, 0, 1) {
		for _, seller := range sellers {
			if rng.IntN(4) != 0 {
				continue
			}
			amount := decimal.NewFromInt(int64(500 + rng.IntN(9500))).Div(decimal.NewFromInt(10)).Round(2)
			saleID := uuid.NewString()
			occurred := d.Add(time.Duration(9+rng.IntN(8)) * time.Hour)
			raw.Sales = append(raw.Sales, analytics.SaleRow{
				ID:         saleID,
				OccurredOn: occurred.Format(time.RFC3339),
				ActorID:    seller.id,
				Amount:     amount.String(),
				Quantity:   fmt.Sprint(1 + rng.IntN(5)),
				ProjectID:  fmt.Sprintf("project-%d", 1+rng.IntN(6)),
			})
			if rng.IntN(3) == 0 {
				continue
			}
			raw.Payments = append(raw.Payments, analytics.PaymentRow{
				ID:      uuid.NewString(),
				PaidOn:  occurred.AddDate(0, 0, rng.IntN(10)).Format(time.RFC3339),
				ActorID: seller.id,
				Amount:  amount.Mul(decimal.NewFromFloat(0.5)).Round(2).String(),
				SaleID:  saleID,
			})
		}
	}

	for _, seller := range sellers {
		for m := start; !m.After(now); m = m.AddDate(0, 1, 0) {
			raw.Targets = append(raw.Targets, analytics.TargetRow{
				ActorID:     seller.id,
				PeriodStart: m.Format("2006-01-02"),
				PeriodKind:  string(analytics.PeriodMonthly),
				Amount:      "15000",
			})
		}
		for y := start.Year(); y <= now.Year(); y++ {
			raw.Targets = append(raw.Targets, analytics.TargetRow{
				ActorID:     seller.id,
				PeriodStart: fmt.Sprintf("%d-01-01", y),
				PeriodKind:  string(analytics.PeriodYearly),
				Amount:      "180000",
			})
		}
	}
	return raw
}

func dateOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
