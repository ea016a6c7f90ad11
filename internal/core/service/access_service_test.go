package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

func TestCheckAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock()

	f.grant("live", "u1", "t1", now.Add(-time.Hour), timePtr(now.Add(time.Hour)), domain.ProvenanceManual)
	f.grant("expired", "u1", "t2", now.Add(-48*time.Hour), timePtr(now.Add(-time.Hour)), domain.ProvenanceManual)
	f.grant("placeholder", "u1", "t3", now, nil, domain.ProvenanceOrder)
	f.grant("restricted-live", "u1", "tr", now.Add(-time.Hour), timePtr(now.Add(time.Hour)), domain.ProvenanceManual)
	f.grant("premium-live", "u-premium", "tr", now.Add(-time.Hour), timePtr(now.Add(time.Hour)), domain.ProvenanceManual)

	tests := []struct {
		name   string
		userID string
		title  string
		want   AccessDecision
	}{
		{"live grant", "u1", "t1", AccessDecision{Authorized: true}},
		{"expired grant", "u1", "t2", AccessDecision{Reason: ReasonExpiredNotRenewed}},
		{"placeholder only", "u1", "t3", AccessDecision{Reason: ReasonNeverGranted}},
		{"no record", "u1", "t4", AccessDecision{Reason: ReasonNeverGranted}},
		{"restricted on basic plan", "u1", "tr", AccessDecision{Reason: ReasonPlanInsufficient}},
		{"restricted on premium plan", "u-premium", "tr", AccessDecision{Authorized: true}},
		{"premium without grant", "u-premium", "t1", AccessDecision{Reason: ReasonNeverGranted}},
		{"staff bypass", "staff", "tr", AccessDecision{Authorized: true}},
	}

	svc := f.accessService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CheckAccess(ctx, tt.userID, tt.title)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestCheckAccess_LapsedBeforeSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock()
	f.grant("e1", "u1", "t1", now, timePtr(now.Add(time.Hour)), domain.ProvenanceManual)

	svc := f.accessService()
	if d, _ := svc.CheckAccess(ctx, "u1", "t1"); !d.Authorized {
		t.Fatalf("expected access before expiry, got %+v", d)
	}

	// exactly at expiry the grant is no longer live
	f.advance(time.Hour)
	d, _ := svc.CheckAccess(ctx, "u1", "t1")
	if d.Authorized || d.Reason != ReasonExpiredNotRenewed {
		t.Errorf("expected ExpiredNotRenewed at expiry, got %+v", d)
	}
}

func TestCheckAccess_MostRecentRecordWins(t *testing.T) {
	f := newFixture(t)
	now := f.clock()

	f.grant("old-live", "u1", "t1", now.Add(-48*time.Hour), timePtr(now.Add(time.Hour)), domain.ProvenanceManual)
	f.grant("new-expired", "u1", "t1", now.Add(-time.Hour), timePtr(now.Add(-time.Minute)), domain.ProvenanceManual)

	d, err := f.accessService().CheckAccess(context.Background(), "u1", "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Authorized {
		t.Error("an older live record must not override the latest one")
	}
}

func TestCheckAccess_PlanCheckedLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock()
	f.grant("e1", "u-premium", "tr", now, timePtr(now.Add(24*time.Hour)), domain.ProvenanceManual)

	svc := f.accessService()
	if d, _ := svc.CheckAccess(ctx, "u-premium", "tr"); !d.Authorized {
		t.Fatalf("expected access on premium, got %+v", d)
	}

	// downgrade mid-grant
	if err := f.db.CreateMember(ctx, domain.Member{ID: "u-downgraded", Role: domain.RoleMember, PlanID: "basic"}); err != nil {
		t.Fatalf("create member: %v", err)
	}
	f.grant("e2", "u-downgraded", "tr", now, timePtr(now.Add(24*time.Hour)), domain.ProvenanceManual)
	if d, _ := svc.CheckAccess(ctx, "u-downgraded", "tr"); d.Reason != ReasonPlanInsufficient {
		t.Errorf("expected PlanInsufficient for downgraded member, got %+v", d)
	}
}

func TestCheckAccess_Unknown(t *testing.T) {
	f := newFixture(t)
	svc := f.accessService()
	ctx := context.Background()

	if _, err := svc.CheckAccess(ctx, "nobody", "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown member, got %v", err)
	}
	if _, err := svc.CheckAccess(ctx, "u1", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown title, got %v", err)
	}
}
