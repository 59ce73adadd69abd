// Package memory provides an in-memory Store implementation mirroring the
// Postgres repository, used by service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository"
)

type Store struct {
	mu           sync.Mutex
	nextUserID   int64
	nextRefID    int64
	users        map[string]*model.User // keyed by telegram user id
	referrals    []model.Referral
	transactions []model.BalanceTransaction
	payments     map[uuid.UUID]*model.Payment
}

func New() *Store {
	return &Store{
		users:    make(map[string]*model.User),
		payments: make(map[uuid.UUID]*model.Payment),
	}
}

func (s *Store) GetUserByTelegramID(_ context.Context, telegramUserID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getUserLocked(telegramUserID)
}

func (s *Store) getUserLocked(telegramUserID string) (*model.User, error) {
	user, ok := s.users[telegramUserID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Username != nil && *user.Username == username {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) GetUserByRefCode(_ context.Context, refCode string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.RefCode == refCode {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *Store) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.insertUserLocked(user); err != nil {
		return err
	}
	if user.Balance != 0 {
		s.appendTransactionLocked(user.TelegramUserID, user.Balance,
			model.TransactionTypeInitialGrant, "Стартовый баланс", nil, 0, user.Balance)
	}
	return nil
}

func (s *Store) insertUserLocked(user *model.User) error {
	if _, ok := s.users[user.TelegramUserID]; ok {
		return repository.ErrUserExists
	}
	for _, existing := range s.users {
		if existing.RefCode == user.RefCode {
			return repository.ErrRefCodeTaken
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	copied := *user
	s.users[user.TelegramUserID] = &copied
	return nil
}

func (s *Store) CreateUserWithReferral(_ context.Context, user *model.User, referrer *model.User, referrerBonus, referredBonus int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertUserLocked(user); err != nil {
		return err
	}
	if user.Balance != 0 {
		s.appendTransactionLocked(user.TelegramUserID, user.Balance,
			model.TransactionTypeInitialGrant, "Стартовый баланс", nil, 0, user.Balance)
	}

	ref := s.users[referrer.TelegramUserID]
	if ref == nil {
		return repository.ErrUserNotFound
	}
	s.adjustLocked(ref, referrerBonus, model.TransactionTypeReferralBonus, "Бонус за приглашённого друга", nil)

	created := s.users[user.TelegramUserID]
	s.adjustLocked(created, referredBonus, model.TransactionTypeReferralBonus, "Бонус за вход по приглашению", nil)
	user.Balance = created.Balance

	s.nextRefID++
	s.referrals = append(s.referrals, model.Referral{
		ID:             s.nextRefID,
		ReferrerUserID: referrer.TelegramUserID,
		ReferredUserID: user.TelegramUserID,
		CreatedAt:      time.Now(),
	})
	return nil
}

func (s *Store) adjustLocked(user *model.User, delta int, txType model.TransactionType, description string, referenceID *uuid.UUID) {
	before := user.Balance
	user.Balance += delta
	user.UpdatedAt = time.Now()
	s.appendTransactionLocked(user.TelegramUserID, delta, txType, description, referenceID, before, user.Balance)
}

func (s *Store) appendTransactionLocked(telegramUserID string, amount int, txType model.TransactionType, description string, referenceID *uuid.UUID, before, after int) {
	var desc *string
	if description != "" {
		desc = &description
	}
	s.transactions = append(s.transactions, model.BalanceTransaction{
		ID:             uuid.New(),
		TelegramUserID: telegramUserID,
		Amount:         amount,
		Type:           txType,
		Description:    desc,
		ReferenceID:    referenceID,
		BalanceBefore:  before,
		BalanceAfter:   after,
		CreatedAt:      time.Now(),
	})
}

func (s *Store) UpdateUserContact(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.TelegramUserID]
	if !ok {
		return nil
	}
	existing.ChatID = user.ChatID
	existing.Username = user.Username
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.UpdatedAt = time.Now()
	return nil
}

func (s *Store) SetTermsAccepted(_ context.Context, telegramUserID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[telegramUserID]
	if ok && user.TermsAcceptedAt == nil {
		user.TermsAcceptedAt = &at
		user.UpdatedAt = time.Now()
	}
	return nil
}

func (s *Store) ListUsersWithReferrals(_ context.Context) ([]model.UserWithReferrals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, ref := range s.referrals {
		counts[ref.ReferrerUserID]++
	}

	users := make([]model.UserWithReferrals, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, model.UserWithReferrals{
			User:          *user,
			ReferredCount: counts[user.TelegramUserID],
		})
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) DeleteUserByTelegramID(_ context.Context, telegramUserID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[telegramUserID]; !ok {
		return false, nil
	}
	delete(s.users, telegramUserID)
	s.deleteReferralsLocked(func(ref model.Referral) bool {
		return ref.ReferrerUserID == telegramUserID || ref.ReferredUserID == telegramUserID
	})
	return true, nil
}

func (s *Store) DeleteUserByUsername(ctx context.Context, username string) (bool, error) {
	user, err := s.GetUserByUsername(ctx, username)
	if err != nil {
		return false, nil
	}
	return s.DeleteUserByTelegramID(ctx, user.TelegramUserID)
}

func (s *Store) DeleteAllUsersExcept(_ context.Context, keep []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}

	deleted := 0
	for id := range s.users {
		if !keepSet[id] {
			delete(s.users, id)
			deleted++
		}
	}
	s.deleteReferralsLocked(func(ref model.Referral) bool {
		return !keepSet[ref.ReferrerUserID] || !keepSet[ref.ReferredUserID]
	})
	return deleted, nil
}

func (s *Store) deleteReferralsLocked(match func(model.Referral) bool) {
	kept := s.referrals[:0]
	for _, ref := range s.referrals {
		if !match(ref) {
			kept = append(kept, ref)
		}
	}
	s.referrals = kept
}

func (s *Store) CountReferrals(_ context.Context, referrerUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, ref := range s.referrals {
		if ref.ReferrerUserID == referrerUserID {
			count++
		}
	}
	return count, nil
}

func (s *Store) GetReferredUsers(_ context.Context, referrerUserID string) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []model.User
	for _, ref := range s.referrals {
		if ref.ReferrerUserID != referrerUserID {
			continue
		}
		if user, ok := s.users[ref.ReferredUserID]; ok {
			users = append(users, *user)
		}
	}
	return users, nil
}

func (s *Store) GetBalance(_ context.Context, telegramUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[telegramUserID]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	return user.Balance, nil
}

func (s *Store) AdjustBalance(_ context.Context, telegramUserID string, delta int, txType model.TransactionType, description string, referenceID *uuid.UUID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[telegramUserID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	s.adjustLocked(user, delta, txType, description, referenceID)
	copied := *user
	return &copied, nil
}

func (s *Store) ChargeBalance(_ context.Context, telegramUserID string, cost int, description string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[telegramUserID]
	if !ok || user.Balance < 0 || user.Balance < cost {
		return 0, false, nil
	}
	s.adjustLocked(user, -cost, model.TransactionTypeCharge, description, nil)
	return user.Balance, true, nil
}

func (s *Store) SetBalance(_ context.Context, telegramUserID string, newBalance int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[telegramUserID]
	if !ok {
		return false, nil
	}
	before := user.Balance
	user.Balance = newBalance
	user.UpdatedAt = time.Now()
	s.appendTransactionLocked(telegramUserID, newBalance-before,
		model.TransactionTypeAdminSet, "Ручная корректировка баланса", nil, before, newBalance)
	return true, nil
}

func (s *Store) GetBalanceTransactions(_ context.Context, telegramUserID string, limit, offset int) ([]model.BalanceTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.BalanceTransaction
	for i := len(s.transactions) - 1; i >= 0; i-- {
		if s.transactions[i].TelegramUserID == telegramUserID {
			matched = append(matched, s.transactions[i])
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) CreatePayment(_ context.Context, payment *model.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment.CreatedAt = time.Now()
	copied := *payment
	s.payments[payment.ID] = &copied
	return nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

func (s *Store) CompleteTopUp(_ context.Context, id uuid.UUID) (*model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[id]
	if !ok {
		return nil, false, repository.ErrPaymentNotFound
	}
	if payment.Status != model.PaymentStatusPending {
		return nil, false, nil
	}

	// the payment stays pending when the user is gone, mirroring the SQL
	// transaction rollback
	user, ok := s.users[payment.TelegramUserID]
	if !ok {
		return nil, false, repository.ErrUserNotFound
	}

	now := time.Now()
	payment.Status = model.PaymentStatusCompleted
	payment.CompletedAt = &now
	s.adjustLocked(user, payment.Amount, model.TransactionTypeTopUp,
		fmt.Sprintf("Пополнение баланса: +%d", payment.Amount), &payment.ID)

	copied := *user
	return &copied, true, nil
}
