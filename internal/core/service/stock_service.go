package service

import (
	"context"
	"fmt"

	"github.com/rl1809/lending/internal/core/domain"
	"github.com/rl1809/lending/internal/port"
)

// StockService is the direct-borrow path on the stock ledger, outside of
// orders. It moves one copy at a time.
type StockService struct {
	db   port.TitleRepository
	opts options
}

func NewStockService(db port.TitleRepository, opts ...Option) *StockService {
	return &StockService{db: db, opts: buildOptions(opts)}
}

func (s *StockService) AddTitle(ctx context.Context, title domain.Title) error {
	if title.ID == "" {
		return invalid("id", "required")
	}
	if title.PriceCents < 0 {
		return invalid("price_cents", "must not be negative")
	}
	if title.CopiesAvailable < 0 {
		return invalid("copies_available", "must not be negative")
	}
	if title.CreatedAt.IsZero() {
		title.CreatedAt = s.opts.now()
	}
	if err := s.db.CreateTitle(ctx, title); err != nil {
		return fmt.Errorf("create title: %w", err)
	}
	return nil
}

func (s *StockService) GetTitle(ctx context.Context, titleID string) (*domain.Title, error) {
	title, err := s.db.GetTitle(ctx, titleID)
	if err != nil {
		return nil, fmt.Errorf("get title: %w", err)
	}
	if title == nil {
		return nil, fmt.Errorf("title %s: %w", titleID, ErrNotFound)
	}
	return title, nil
}

func (s *StockService) BorrowCopy(ctx context.Context, titleID string) (*domain.Title, error) {
	title, err := s.GetTitle(ctx, titleID)
	if err != nil {
		return nil, err
	}

	ok, err := s.db.ReserveStock(ctx, titleID, 1)
	if err != nil {
		return nil, fmt.Errorf("borrow copy: %w", err)
	}
	if !ok {
		return nil, &StockError{TitleID: titleID, Requested: 1, Available: title.CopiesAvailable}
	}
	return s.GetTitle(ctx, titleID)
}

func (s *StockService) ReturnCopy(ctx context.Context, titleID string) (*domain.Title, error) {
	if _, err := s.GetTitle(ctx, titleID); err != nil {
		return nil, err
	}
	if err := s.db.ReleaseStock(ctx, titleID, 1); err != nil {
		return nil, fmt.Errorf("return copy: %w", err)
	}
	return s.GetTitle(ctx, titleID)
}
