package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/bananagen/backend/internal/model"
)

// Store is the persistence surface the services run on. The SQL
// implementation lives in internal/repository; tests use the in-memory one
// from internal/repository/memory. Implementations return
// repository.ErrUserNotFound and friends so callers can branch on sentinels.
type Store interface {
	GetUserByTelegramID(ctx context.Context, telegramUserID string) (*model.User, error)
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)
	GetUserByRefCode(ctx context.Context, refCode string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	CreateUserWithReferral(ctx context.Context, user *model.User, referrer *model.User, referrerBonus, referredBonus int) error
	UpdateUserContact(ctx context.Context, user *model.User) error
	SetTermsAccepted(ctx context.Context, telegramUserID string, at time.Time) error
	ListUsersWithReferrals(ctx context.Context) ([]model.UserWithReferrals, error)
	DeleteUserByTelegramID(ctx context.Context, telegramUserID string) (bool, error)
	DeleteUserByUsername(ctx context.Context, username string) (bool, error)
	DeleteAllUsersExcept(ctx context.Context, keep []string) (int, error)

	CountReferrals(ctx context.Context, referrerUserID string) (int, error)
	GetReferredUsers(ctx context.Context, referrerUserID string) ([]model.User, error)

	GetBalance(ctx context.Context, telegramUserID string) (int, error)
	AdjustBalance(ctx context.Context, telegramUserID string, delta int, txType model.TransactionType, description string, referenceID *uuid.UUID) (*model.User, error)
	ChargeBalance(ctx context.Context, telegramUserID string, cost int, description string) (int, bool, error)
	SetBalance(ctx context.Context, telegramUserID string, newBalance int) (bool, error)
	GetBalanceTransactions(ctx context.Context, telegramUserID string, limit, offset int) ([]model.BalanceTransaction, error)

	CreatePayment(ctx context.Context, payment *model.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	CompleteTopUp(ctx context.Context, id uuid.UUID) (*model.User, bool, error)
}
