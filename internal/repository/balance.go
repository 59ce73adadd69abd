package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/bananagen/backend/internal/model"
)

// GetBalance returns the current balance of a user.
func (r *Repository) GetBalance(ctx context.Context, telegramUserID string) (int, error) {
	var balance int
	err := r.db.GetContext(ctx, &balance,
		"SELECT balance FROM users WHERE telegram_user_id = $1", telegramUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return balance, err
}

// AdjustBalance applies a relative balance change and records it in the audit
// ledger within the same transaction. This is the single primitive every
// balance mutation funnels through; it carries no floor, so administrative
// adjustments may drive a balance negative.
func (r *Repository) AdjustBalance(ctx context.Context, telegramUserID string, delta int, txType model.TransactionType, description string, referenceID *uuid.UUID) (*model.User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var user model.User
	err = tx.GetContext(ctx, &user,
		"SELECT * FROM users WHERE telegram_user_id = $1 FOR UPDATE", telegramUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	balanceBefore := user.Balance
	balanceAfter := balanceBefore + delta

	err = tx.QueryRowContext(ctx,
		"UPDATE users SET balance = $2, updated_at = NOW() WHERE telegram_user_id = $1 RETURNING balance, updated_at",
		telegramUserID, balanceAfter).Scan(&user.Balance, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	err = insertTransactionTx(ctx, tx, telegramUserID, delta, txType, description, referenceID, balanceBefore, balanceAfter)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChargeBalance debits cost from the user in a single conditional update, so
// two concurrent charges can never take the balance below zero. Returns the
// new balance and whether the debit landed; an unknown user or insufficient
// funds both come back as charged=false without an error.
func (r *Repository) ChargeBalance(ctx context.Context, telegramUserID string, cost int, description string) (int, bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	var balanceAfter int
	err = tx.QueryRowContext(ctx, `
		UPDATE users SET balance = balance - $2, updated_at = NOW()
		WHERE telegram_user_id = $1 AND balance >= 0 AND balance >= $2
		RETURNING balance`,
		telegramUserID, cost).Scan(&balanceAfter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to charge balance: %w", err)
	}

	err = insertTransactionTx(ctx, tx, telegramUserID, -cost,
		model.TransactionTypeCharge, description, nil, balanceAfter+cost, balanceAfter)
	if err != nil {
		return 0, false, err
	}

	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return balanceAfter, true, nil
}

// SetBalance is the absolute administrative overwrite. Returns false when the
// user does not exist.
func (r *Repository) SetBalance(ctx context.Context, telegramUserID string, newBalance int) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var balanceBefore int
	err = tx.GetContext(ctx, &balanceBefore,
		"SELECT balance FROM users WHERE telegram_user_id = $1 FOR UPDATE", telegramUserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE users SET balance = $2, updated_at = NOW() WHERE telegram_user_id = $1",
		telegramUserID, newBalance)
	if err != nil {
		return false, err
	}

	err = insertTransactionTx(ctx, tx, telegramUserID, newBalance-balanceBefore,
		model.TransactionTypeAdminSet, "Ручная корректировка баланса", nil, balanceBefore, newBalance)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// GetBalanceTransactions returns the audit ledger for a user, newest first.
func (r *Repository) GetBalanceTransactions(ctx context.Context, telegramUserID string, limit, offset int) ([]model.BalanceTransaction, error) {
	var transactions []model.BalanceTransaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM balance_transactions
		WHERE telegram_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		telegramUserID, limit, offset)
	return transactions, err
}

func insertTransactionTx(ctx context.Context, tx *sqlx.Tx, telegramUserID string, amount int, txType model.TransactionType, description string, referenceID *uuid.UUID, before, after int) error {
	var desc *string
	if description != "" {
		desc = &description
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO balance_transactions (telegram_user_id, amount, type, description, reference_id, balance_before, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		telegramUserID, amount, txType, desc, referenceID, before, after)
	if err != nil {
		return fmt.Errorf("failed to create transaction record: %w", err)
	}
	return nil
}
