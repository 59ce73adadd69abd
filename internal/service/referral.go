package service

import (
	"context"
	"errors"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository"
)

type ReferralService struct {
	store Store
}

func NewReferralService(store Store) *ReferralService {
	return &ReferralService{store: store}
}

// GetReferralStats returns the user's shareable code and how many users
// joined through it. Unknown users get a nil code and a zero count.
func (s *ReferralService) GetReferralStats(ctx context.Context, telegramUserID string) (*model.ReferralStats, error) {
	user, err := s.store.GetUserByTelegramID(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &model.ReferralStats{}, nil
		}
		return nil, err
	}

	count, err := s.store.CountReferrals(ctx, telegramUserID)
	if err != nil {
		return nil, err
	}

	refCode := user.RefCode
	return &model.ReferralStats{RefCode: &refCode, ReferredCount: count}, nil
}

func (s *ReferralService) GetReferralLink(ctx context.Context, telegramUserID, botUsername string) (string, error) {
	user, err := s.store.GetUserByTelegramID(ctx, telegramUserID)
	if err != nil {
		return "", err
	}
	return "https://t.me/" + botUsername + "?startapp=" + user.RefCode, nil
}

func (s *ReferralService) GetReferredUsers(ctx context.Context, telegramUserID string) ([]model.User, error) {
	return s.store.GetReferredUsers(ctx, telegramUserID)
}
