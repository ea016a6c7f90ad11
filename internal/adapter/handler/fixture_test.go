package handler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/lending/internal/adapter/blob"
	"github.com/rl1809/lending/internal/adapter/storage"
	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/core/service"
)

type memCache struct {
	mu    sync.Mutex
	keys  map[string]bool
	locks map[string]string
	seq   int
}

func (m *memCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memCache) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memCache) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	m.seq++
	token := fmt.Sprintf("t%d", m.seq)
	m.locks[key] = token
	return token, true, nil
}

func (m *memCache) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

var testNow = time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)

func newServices(t *testing.T) Services {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "lending.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db := storage.NewSQLiteAdapter(sqlDB)
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(db.CreatePlan(ctx, domain.MembershipPlan{ID: "basic", TierName: "basic", MonthlyGrantLimit: 1, AccessDurationDays: 30}))
	must(db.CreateMember(ctx, domain.Member{ID: "u1", Email: "u1@example.com", Role: domain.RoleMember, PlanID: "basic", EnrollmentStartDate: testNow.AddDate(-1, 0, 0)}))
	must(db.CreateMember(ctx, domain.Member{ID: "admin", Email: "admin@example.com", Role: domain.RoleAdmin, PlanID: "basic"}))
	must(db.CreateAddress(ctx, domain.Address{ID: "addr-1", UserID: "u1", Line1: "1 Main St"}))
	must(db.CreateTitle(ctx, domain.Title{ID: "t1", Name: "Dune", PriceCents: 1000, ContentKey: "titles/t1.txt", StockLedger: domain.StockLedger{CopiesAvailable: 2}}))
	must(db.CreateTitle(ctx, domain.Title{ID: "t2", Name: "Emma", PriceCents: 500, StockLedger: domain.StockLedger{CopiesAvailable: 1}}))
	must(db.CreateTitle(ctx, domain.Title{ID: "tr", Name: "Restricted", PriceCents: 500, Restricted: true, StockLedger: domain.StockLedger{CopiesAvailable: 1}}))

	blobs, err := blob.NewFileStore(t.TempDir(), "/content")
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}

	cache := &memCache{keys: map[string]bool{}, locks: map[string]string{}}
	opts := []service.Option{service.WithClock(func() time.Time { return testNow })}
	access := service.NewAccessService(db, opts...)
	return Services{
		Orders:  service.NewOrderService(db, cache, opts...),
		Quota:   service.NewQuotaService(db, cache, opts...),
		Access:  access,
		Content: service.NewContentService(db, access, blobs, opts...),
		Stock:   service.NewStockService(db, opts...),
		Sweeper: service.NewSweeper(db, opts...),
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
