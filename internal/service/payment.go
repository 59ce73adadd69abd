package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bananagen/backend/internal/model"
)

var (
	ErrAmountOutOfRange = errors.New("сумма вне допустимого диапазона")
	ErrPaymentProcessed = errors.New("платёж уже обработан")
)

// PaymentService is the thin contract between external payment providers and
// the ledger: it creates pending top-ups and credits the balance exactly once
// when the provider's webhook confirms them.
type PaymentService struct {
	store Store
}

func NewPaymentService(store Store) *PaymentService {
	return &PaymentService{store: store}
}

func (s *PaymentService) InitTopUp(ctx context.Context, telegramUserID string, amount int, method model.PaymentMethod) (*model.Payment, error) {
	if amount < model.MinTopUpAmount || amount > model.MaxTopUpAmount {
		return nil, fmt.Errorf("%w: %d..%d", ErrAmountOutOfRange, model.MinTopUpAmount, model.MaxTopUpAmount)
	}

	payment := &model.Payment{
		ID:             uuid.New(),
		TelegramUserID: telegramUserID,
		Amount:         amount,
		Method:         method,
		Status:         model.PaymentStatusPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// CompleteTopUp marks the payment completed and credits the ledger, both in
// one storage transaction. A failed credit leaves the payment pending so the
// provider's retry can repair it; replayed deliveries of a completed payment
// return ErrPaymentProcessed without touching the balance.
func (s *PaymentService) CompleteTopUp(ctx context.Context, paymentID uuid.UUID) (*model.User, error) {
	user, completed, err := s.store.CompleteTopUp(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !completed {
		return nil, ErrPaymentProcessed
	}
	return user, nil
}
