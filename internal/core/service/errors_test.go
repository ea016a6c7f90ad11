package service

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, ""},
		{invalid("user_id", "required"), KindValidation},
		{ErrCartEmpty, KindValidation},
		{fmt.Errorf("order x: %w", ErrNotFound), KindNotFound},
		{ErrAddressNotFound, KindNotFound},
		{&TransitionError{From: "PENDING", To: "DELIVERED"}, KindStateConflict},
		{&QuotaError{Limit: 3, Used: 3}, KindStateConflict},
		{&AlreadyActiveError{TitleID: "t1", ExpiresAt: time.Now()}, KindStateConflict},
		{&StockError{TitleID: "t1"}, KindStateConflict},
		{ErrRefundDetailsMissing, KindStateConflict},
		{ErrUpgradeRequired, KindStateConflict},
		{fmt.Errorf("send invoice: %w: %w", ErrUpstream, errors.New("smtp")), KindUpstream},
		{errors.New("disk I/O error"), KindFatal},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestQuotaErrorMessageCarriesLimit(t *testing.T) {
	err := &QuotaError{Limit: 3, Used: 3, CycleStart: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)}
	want := "monthly limit of 3 reached (3 used since 2025-03-31)"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
