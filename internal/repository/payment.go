package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/bananagen/backend/internal/model"
)

var ErrPaymentNotFound = errors.New("payment not found")

func (r *Repository) CreatePayment(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (id, telegram_user_id, amount, method, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	return r.db.QueryRowContext(ctx, query,
		payment.ID,
		payment.TelegramUserID,
		payment.Amount,
		payment.Method,
		payment.Status,
	).Scan(&payment.CreatedAt)
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	var payment model.Payment
	err := r.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &payment, nil
}

// CompleteTopUp flips a pending payment to completed and credits its amount
// to the user's balance, both writes in one transaction. A failed credit
// rolls the status flip back too, so the payment stays pending and the
// provider's retry can complete it. Returns completed=false when the payment
// was already processed, which makes webhook replays harmless.
func (r *Repository) CompleteTopUp(ctx context.Context, id uuid.UUID) (*model.User, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	var payment model.Payment
	err = tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrPaymentNotFound
		}
		return nil, false, err
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, false, nil
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE payments SET status = 'completed', completed_at = NOW() WHERE id = $1", id)
	if err != nil {
		return nil, false, err
	}

	var user model.User
	err = tx.GetContext(ctx, &user,
		"SELECT * FROM users WHERE telegram_user_id = $1 FOR UPDATE", payment.TelegramUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, fmt.Errorf("failed to get user: %w", err)
	}

	balanceBefore := user.Balance
	balanceAfter := balanceBefore + payment.Amount

	err = tx.QueryRowContext(ctx,
		"UPDATE users SET balance = $2, updated_at = NOW() WHERE telegram_user_id = $1 RETURNING balance, updated_at",
		user.TelegramUserID, balanceAfter).Scan(&user.Balance, &user.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update balance: %w", err)
	}

	description := fmt.Sprintf("Пополнение баланса: +%d", payment.Amount)
	err = insertTransactionTx(ctx, tx, user.TelegramUserID, payment.Amount,
		model.TransactionTypeTopUp, description, &payment.ID, balanceBefore, balanceAfter)
	if err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &user, true, nil
}
