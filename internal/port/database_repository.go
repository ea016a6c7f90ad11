package port

import (
	"context"
	"errors"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

// ErrOptimisticLock is returned when a conditional write lost a race.
var ErrOptimisticLock = errors.New("optimistic lock conflict")

// Lookups return (nil, nil) when the record does not exist.

type TitleRepository interface {
	CreateTitle(ctx context.Context, title domain.Title) error
	GetTitle(ctx context.Context, titleID string) (*domain.Title, error)

	// ReserveStock atomically takes quantity copies, returns false if insufficient
	ReserveStock(ctx context.Context, titleID string, quantity int) (bool, error)

	// ReleaseStock atomically puts quantity copies back
	ReleaseStock(ctx context.Context, titleID string, quantity int) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID string) ([]domain.Order, error)

	// UpdateOrder writes the mutable order fields only if the stored status
	// still equals expected, otherwise ErrOptimisticLock. The effect
	// markers are left alone.
	UpdateOrder(ctx context.Context, order domain.Order, expected domain.OrderStatus) error

	// ReleaseOrderStock returns the order's copies and stamps its release
	// marker atomically, returns false if the marker was already set
	ReleaseOrderStock(ctx context.Context, orderID string, at time.Time) (bool, error)

	// MarkAccessGranted records that the delivery grants were written at
	MarkAccessGranted(ctx context.Context, orderID string, at time.Time) error
}

type EntitlementRepository interface {
	CreateEntitlement(ctx context.Context, e domain.Entitlement) error
	UpdateEntitlement(ctx context.Context, e domain.Entitlement) error

	// LatestFor returns the most recently granted record for the pair
	LatestFor(ctx context.Context, userID, titleID string) (*domain.Entitlement, error)
	ListEntitlements(ctx context.Context, userID string) ([]domain.Entitlement, error)

	// CountManualGrantsSince counts non-order grants with grantedAt >= since
	CountManualGrantsSince(ctx context.Context, userID string, since time.Time) (int, error)

	// DeletePlaceholders removes records without an expiry for the titles
	DeletePlaceholders(ctx context.Context, userID string, titleIDs []string) (int64, error)

	// ExpireLapsed moves ACTIVE records with expiresAt < now to EXPIRED
	ExpireLapsed(ctx context.Context, now time.Time) (int64, error)

	// DeleteEntitlements hard-deletes every record of the user (account erasure)
	DeleteEntitlements(ctx context.Context, userID string) (int64, error)
}

type MemberRepository interface {
	CreatePlan(ctx context.Context, plan domain.MembershipPlan) error
	GetPlan(ctx context.Context, planID string) (*domain.MembershipPlan, error)
	CreateMember(ctx context.Context, member domain.Member) error
	GetMember(ctx context.Context, userID string) (*domain.Member, error)
	CreateAddress(ctx context.Context, addr domain.Address) error
	GetAddress(ctx context.Context, addressID string) (*domain.Address, error)
}

type DatabaseRepository interface {
	TitleRepository
	OrderRepository
	EntitlementRepository
	MemberRepository
}
