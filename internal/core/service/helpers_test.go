package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rl1809/lending/internal/adapter/storage"
	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	idempotencySet map[string]bool
	locks          map[string]string
	seq            int
	mu             sync.Mutex
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		idempotencySet: make(map[string]bool),
		locks:          make(map[string]string),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.idempotencySet[key] {
		return false, nil
	}
	m.idempotencySet[key] = true
	return true, nil
}

func (m *mockCacheRepo) ClearIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.idempotencySet, key)
	return nil
}

func (m *mockCacheRepo) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[key]; held {
		return "", false, nil
	}
	m.seq++
	token := fmt.Sprintf("token-%d", m.seq)
	m.locks[key] = token
	return token, true, nil
}

func (m *mockCacheRepo) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] == token {
		delete(m.locks, key)
	}
	return nil
}

// Mock Notifier
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []port.Notification
	roles []string
	fail  bool
}

func (n *recordingNotifier) Notify(ctx context.Context, msg port.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.sent = append(n.sent, msg)
	return nil
}

func (n *recordingNotifier) NotifyRole(ctx context.Context, role domain.Role, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("broker unavailable")
	}
	n.roles = append(n.roles, string(role)+": "+message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (r *fakeRenderer) Render(ctx context.Context, snapshot port.InvoiceSnapshot) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail {
		return nil, errors.New("renderer crashed")
	}
	return []byte("invoice " + snapshot.Order.ID), nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []port.Mail
}

func (m *fakeMailer) Send(ctx context.Context, mail port.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

type memBlobStore struct {
	objects map[string][]byte
	fail    bool
}

func (b *memBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if b.fail {
		return "", errors.New("disk full")
	}
	b.objects[key] = data
	return "mem://" + key, nil
}

func (b *memBlobStore) GetStream(ctx context.Context, key string) (io.ReadCloser, string, int64, error) {
	if b.fail {
		return nil, "", 0, errors.New("disk unreadable")
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, "", 0, port.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "application/pdf", int64(len(data)), nil
}

// fixture is a seeded SQLite store plus recording collaborators and a
// settable clock.
type fixture struct {
	t        *testing.T
	db       *storage.SQLAdapter
	cache    *mockCacheRepo
	notifier *recordingNotifier
	renderer *fakeRenderer
	mailer   *fakeMailer

	mu  sync.Mutex
	now time.Time
}

var fixtureStart = time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
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

	f := &fixture{
		t:        t,
		db:       db,
		cache:    newMockCacheRepo(),
		notifier: &recordingNotifier{},
		renderer: &fakeRenderer{},
		mailer:   &fakeMailer{},
		now:      fixtureStart,
	}
	f.seed()
	return f
}

func (f *fixture) seed() {
	ctx := context.Background()
	plans := []domain.MembershipPlan{
		{ID: "free", TierName: domain.TierFree, AccessDurationDays: 14},
		{ID: "basic", TierName: "basic", MonthlyGrantLimit: 3, AccessDurationDays: 30},
		{ID: "premium", TierName: "premium", MonthlyGrantLimit: 10, AccessDurationDays: 60, DeliveryFeeWaived: true, CanAccessRestrictedTitles: true},
	}
	for _, p := range plans {
		f.must(f.db.CreatePlan(ctx, p))
	}

	members := []domain.Member{
		{ID: "u1", Email: "u1@example.com", Role: domain.RoleMember, PlanID: "basic", EnrollmentStartDate: time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)},
		{ID: "u-free", Email: "free@example.com", Role: domain.RoleMember, PlanID: "free"},
		{ID: "u-premium", Email: "p@example.com", Role: domain.RoleMember, PlanID: "premium", EnrollmentStartDate: time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)},
		{ID: "staff", Email: "staff@example.com", Role: domain.RoleStaff, PlanID: "free"},
	}
	for _, m := range members {
		f.must(f.db.CreateMember(ctx, m))
	}

	f.must(f.db.CreateAddress(ctx, domain.Address{ID: "addr-1", UserID: "u1", Line1: "1 Main St", City: "Springfield"}))
	f.must(f.db.CreateAddress(ctx, domain.Address{ID: "addr-p", UserID: "u-premium", Line1: "2 Elm St", City: "Springfield"}))

	titles := []domain.Title{
		{ID: "t1", Name: "Dune", PriceCents: 1000, ContentKey: "titles/t1.pdf", StockLedger: domain.StockLedger{CopiesAvailable: 5}},
		{ID: "t2", Name: "Emma", PriceCents: 500, ContentKey: "titles/t2.pdf", StockLedger: domain.StockLedger{CopiesAvailable: 3}},
		{ID: "t3", Name: "Ulysses", PriceCents: 700, StockLedger: domain.StockLedger{CopiesAvailable: 1}},
		{ID: "t4", Name: "Beloved", PriceCents: 900, StockLedger: domain.StockLedger{CopiesAvailable: 1}},
		{ID: "t5", Name: "Walden", PriceCents: 300, StockLedger: domain.StockLedger{CopiesAvailable: 1}},
		{ID: "tr", Name: "Restricted", PriceCents: 2000, Restricted: true, ContentKey: "titles/tr.pdf", StockLedger: domain.StockLedger{CopiesAvailable: 2}},
	}
	for _, tt := range titles {
		f.must(f.db.CreateTitle(ctx, tt))
	}
}

func (f *fixture) must(err error) {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("seed: %v", err)
	}
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) options() []Option {
	return []Option{
		WithClock(f.clock),
		WithNotifier(f.notifier),
		WithInvoices(f.renderer, f.mailer),
	}
}

func (f *fixture) orderService() *OrderService {
	return NewOrderService(f.db, f.cache, f.options()...)
}

func (f *fixture) quotaService() *QuotaService {
	return NewQuotaService(f.db, f.cache, f.options()...)
}

func (f *fixture) accessService() *AccessService {
	return NewAccessService(f.db, f.options()...)
}

func (f *fixture) copies(titleID string) int {
	f.t.Helper()
	title, err := f.db.GetTitle(context.Background(), titleID)
	if err != nil || title == nil {
		f.t.Fatalf("get title %s: %v", titleID, err)
	}
	if (title.Status == domain.AvailabilityOutOfStock) != (title.CopiesAvailable == 0) {
		f.t.Fatalf("ledger invariant broken for %s: %d %s", titleID, title.CopiesAvailable, title.Status)
	}
	return title.CopiesAvailable
}

func (f *fixture) grant(id, userID, titleID string, granted time.Time, expires *time.Time, prov domain.Provenance) {
	f.t.Helper()
	f.must(f.db.CreateEntitlement(context.Background(), domain.Entitlement{
		ID:         id,
		UserID:     userID,
		TitleID:    titleID,
		Status:     domain.EntitlementActive,
		Provenance: prov,
		GrantedAt:  granted,
		ExpiresAt:  expires,
		UpdatedAt:  granted,
	}))
}

func timePtr(t time.Time) *time.Time { return &t }
