package service

import (
	"context"

	"github.com/bananagen/backend/internal/model"
)

// AdminService groups the manual-correction operations. They bypass the
// charge-flow guards on purpose: an administrative adjustment may drive a
// balance negative.
type AdminService struct {
	store Store
}

func NewAdminService(store Store) *AdminService {
	return &AdminService{store: store}
}

func (s *AdminService) ListUsers(ctx context.Context) ([]model.UserWithReferrals, error) {
	return s.store.ListUsersWithReferrals(ctx)
}

func (s *AdminService) SetUserBalance(ctx context.Context, telegramUserID string, newBalance int) (bool, error) {
	return s.store.SetBalance(ctx, telegramUserID, newBalance)
}

func (s *AdminService) AdjustUserBalance(ctx context.Context, telegramUserID string, delta int) (*model.User, error) {
	return s.store.AdjustBalance(ctx, telegramUserID, delta,
		model.TransactionTypeManual, "Ручная корректировка баланса", nil)
}

func (s *AdminService) DeleteUserByTelegramID(ctx context.Context, telegramUserID string) (bool, error) {
	return s.store.DeleteUserByTelegramID(ctx, telegramUserID)
}

func (s *AdminService) DeleteUserByUsername(ctx context.Context, username string) (bool, error) {
	return s.store.DeleteUserByUsername(ctx, username)
}

func (s *AdminService) DeleteAllUsersExcept(ctx context.Context, keep []string) (int, error) {
	return s.store.DeleteAllUsersExcept(ctx, keep)
}
