package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository"
)

var ErrUnknownModel = errors.New("unknown model")

// BillingService owns the pricing table, the advisory affordability check and
// the post-delivery charge. It also keeps the currently selected generation
// model, switchable at runtime from the admin settings endpoint.
type BillingService struct {
	store Store

	mu          sync.RWMutex
	activeModel string
}

func NewBillingService(store Store, defaultModel string) *BillingService {
	if !model.IsKnownModel(defaultModel) {
		defaultModel = model.DefaultModelID
	}
	return &BillingService{store: store, activeModel: defaultModel}
}

func (s *BillingService) ActiveModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeModel
}

func (s *BillingService) SetActiveModel(modelID string) error {
	if !model.IsKnownModel(modelID) {
		return ErrUnknownModel
	}
	s.mu.Lock()
	s.activeModel = modelID
	s.mu.Unlock()
	return nil
}

// GetBalanceCheck answers "can this user afford up to N images at this
// model's price" before the provider is called. It is advisory only and does
// not reserve funds. A user with any negative balance is always disallowed,
// and an unknown user fails closed.
func (s *BillingService) GetBalanceCheck(ctx context.Context, telegramUserID, modelID string, mode model.Mode, count int) (model.BalanceCheck, error) {
	required := model.PriceForModel(modelID) * model.Multiplier(mode, count)

	if telegramUserID == "" {
		return model.BalanceCheck{Required: required, Shortfall: required}, nil
	}

	balance, err := s.store.GetBalance(ctx, telegramUserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.BalanceCheck{Required: required, Shortfall: required}, nil
		}
		return model.BalanceCheck{}, err
	}

	check := model.BalanceCheck{
		Allowed:  balance >= 0 && balance >= required,
		Balance:  balance,
		Required: required,
	}
	if !check.Allowed {
		check.Shortfall = required - balance
	}
	return check, nil
}

// ChargeContext describes what was actually delivered. Images is the number
// of images the user received, not the number requested; single-image modes
// pass 1.
type ChargeContext struct {
	Mode   model.Mode
	Images int
}

// ChargeUserForModel debits the user for the delivered images, all or
// nothing. The user is shielded from provider failures twice over: only
// delivered images are billed, and a failed debit (including storage errors)
// is reported as Charged=false rather than an error, because delivery has
// already happened and must not be rolled back.
func (s *BillingService) ChargeUserForModel(ctx context.Context, telegramUserID, modelID string, chargeCtx ChargeContext) model.ChargeResult {
	images := chargeCtx.Images
	if images < 0 {
		images = 0
	}
	cost := images * model.PriceForModel(modelID)

	if telegramUserID == "" || cost <= 0 {
		return model.ChargeResult{Price: cost}
	}

	description := fmt.Sprintf("%s: %d × %s", chargeCtx.Mode, images, modelID)
	balance, charged, err := s.store.ChargeBalance(ctx, telegramUserID, cost, description)
	if err != nil {
		log.Printf("billing: charge failed for user %s model %s: %v", telegramUserID, modelID, err)
		return model.ChargeResult{Price: cost}
	}
	if !charged {
		return model.ChargeResult{Price: cost}
	}

	return model.ChargeResult{Charged: true, Price: cost, Balance: &balance}
}

// GetTransactions returns the audit ledger page for a user.
func (s *BillingService) GetTransactions(ctx context.Context, telegramUserID string, limit, offset int) ([]model.BalanceTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.store.GetBalanceTransactions(ctx, telegramUserID, limit, offset)
}
