package repository

import (
	"context"
	"fmt"

	"github.com/bananagen/backend/internal/model"
)

// CreateUserWithReferral creates a new user and applies the one-time referral
// bonus as a single unit: the referrer credit, the new-user credit, the
// referral row and both audit rows either all land or none do.
func (r *Repository) CreateUserWithReferral(ctx context.Context, user *model.User, referrer *model.User, referrerBonus, referredBonus int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertUserTx(ctx, tx, user); err != nil {
		return err
	}

	if user.Balance != 0 {
		err = insertTransactionTx(ctx, tx, user.TelegramUserID, user.Balance,
			model.TransactionTypeInitialGrant, "Стартовый баланс", nil, 0, user.Balance)
		if err != nil {
			return err
		}
	}

	var referrerAfter int
	err = tx.QueryRowContext(ctx,
		"UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE telegram_user_id = $1 RETURNING balance",
		referrer.TelegramUserID, referrerBonus).Scan(&referrerAfter)
	if err != nil {
		return fmt.Errorf("failed to credit referrer: %w", err)
	}
	err = insertTransactionTx(ctx, tx, referrer.TelegramUserID, referrerBonus,
		model.TransactionTypeReferralBonus, "Бонус за приглашённого друга", nil,
		referrerAfter-referrerBonus, referrerAfter)
	if err != nil {
		return err
	}

	var referredAfter int
	err = tx.QueryRowContext(ctx,
		"UPDATE users SET balance = balance + $2, updated_at = NOW() WHERE telegram_user_id = $1 RETURNING balance",
		user.TelegramUserID, referredBonus).Scan(&referredAfter)
	if err != nil {
		return fmt.Errorf("failed to credit referred user: %w", err)
	}
	err = insertTransactionTx(ctx, tx, user.TelegramUserID, referredBonus,
		model.TransactionTypeReferralBonus, "Бонус за вход по приглашению", nil,
		referredAfter-referredBonus, referredAfter)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO referrals (referrer_user_id, referred_user_id) VALUES ($1, $2)",
		referrer.TelegramUserID, user.TelegramUserID)
	if err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	user.Balance = referredAfter
	return nil
}

func (r *Repository) CountReferrals(ctx context.Context, referrerUserID string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM referrals WHERE referrer_user_id = $1", referrerUserID)
	return count, err
}

func (r *Repository) GetReferredUsers(ctx context.Context, referrerUserID string) ([]model.User, error) {
	var users []model.User
	query := `
		SELECT u.* FROM users u
		INNER JOIN referrals r ON r.referred_user_id = u.telegram_user_id
		WHERE r.referrer_user_id = $1
		ORDER BY r.created_at DESC`
	err := r.db.SelectContext(ctx, &users, query, referrerUserID)
	return users, err
}
