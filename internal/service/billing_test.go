package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository/memory"
)

func newBillingFixture(t *testing.T, balance int) (*BillingService, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	user := &model.User{
		TelegramUserID: "100",
		ChatID:         "100",
		Balance:        balance,
		RefCode:        GenerateRefCode("100"),
	}
	require.NoError(t, store.CreateUser(context.Background(), user))
	return NewBillingService(store, model.DefaultModelID), store, user.TelegramUserID
}

func TestSetActiveModel(t *testing.T) {
	svc := NewBillingService(memory.New(), "")
	require.Equal(t, model.DefaultModelID, svc.ActiveModel())

	require.NoError(t, svc.SetActiveModel("google/gemini-3-pro-image-preview"))
	require.Equal(t, "google/gemini-3-pro-image-preview", svc.ActiveModel())

	require.ErrorIs(t, svc.SetActiveModel("nope/model"), ErrUnknownModel)
	require.Equal(t, "google/gemini-3-pro-image-preview", svc.ActiveModel())
}

func TestGetBalanceCheck(t *testing.T) {
	svc, _, userID := newBillingFixture(t, 100)
	ctx := context.Background()

	check, err := svc.GetBalanceCheck(ctx, userID, model.DefaultModelID, model.ModeGen, 1)
	require.NoError(t, err)
	require.True(t, check.Allowed)
	require.Equal(t, 100, check.Balance)
	require.Equal(t, 10, check.Required)
	require.Zero(t, check.Shortfall)

	// Product mode bills for five images up front.
	check, err = svc.GetBalanceCheck(ctx, userID, model.DefaultModelID, model.ModeProduct, 0)
	require.NoError(t, err)
	require.True(t, check.Allowed)
	require.Equal(t, 50, check.Required)

	// Poses count is clamped to ten.
	check, err = svc.GetBalanceCheck(ctx, userID, model.DefaultModelID, model.ModePoses, 15)
	require.NoError(t, err)
	require.Equal(t, 100, check.Required)
	require.True(t, check.Allowed)
}

func TestGetBalanceCheck_Shortfall(t *testing.T) {
	svc, _, userID := newBillingFixture(t, 30)

	check, err := svc.GetBalanceCheck(context.Background(), userID,
		"google/gemini-3-pro-image-preview", model.ModeProduct, 0)
	require.NoError(t, err)
	require.False(t, check.Allowed)
	require.Equal(t, 30, check.Balance)
	require.Equal(t, 125, check.Required)
	require.Equal(t, 95, check.Shortfall)
}

func TestGetBalanceCheck_NegativeBalance(t *testing.T) {
	svc, store, userID := newBillingFixture(t, 30)
	ctx := context.Background()

	_, err := store.AdjustBalance(ctx, userID, -50, model.TransactionTypeManual, "", nil)
	require.NoError(t, err)

	check, err := svc.GetBalanceCheck(ctx, userID, model.DefaultModelID, model.ModeGen, 1)
	require.NoError(t, err)
	require.False(t, check.Allowed)
	require.Equal(t, -20, check.Balance)
	require.Equal(t, 30, check.Shortfall)
}

func TestGetBalanceCheck_UnknownUser(t *testing.T) {
	svc := NewBillingService(memory.New(), model.DefaultModelID)

	check, err := svc.GetBalanceCheck(context.Background(), "nope", model.DefaultModelID, model.ModeGen, 1)
	require.NoError(t, err)
	require.False(t, check.Allowed)
	require.Equal(t, 10, check.Required)
	require.Equal(t, 10, check.Shortfall)
}

func TestChargeUserForModel(t *testing.T) {
	svc, _, userID := newBillingFixture(t, 100)

	result := svc.ChargeUserForModel(context.Background(), userID, model.DefaultModelID,
		ChargeContext{Mode: model.ModeProduct, Images: 3})
	require.True(t, result.Charged)
	require.Equal(t, 30, result.Price)
	require.NotNil(t, result.Balance)
	require.Equal(t, 70, *result.Balance)
}

func TestChargeUserForModel_InsufficientFunds(t *testing.T) {
	svc, store, userID := newBillingFixture(t, 5)
	ctx := context.Background()

	result := svc.ChargeUserForModel(ctx, userID, model.DefaultModelID,
		ChargeContext{Mode: model.ModeGen, Images: 1})
	require.False(t, result.Charged)
	require.Equal(t, 10, result.Price)
	require.Nil(t, result.Balance)

	balance, err := store.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 5, balance)
}

func TestChargeUserForModel_NegativeBalanceNeverCharged(t *testing.T) {
	svc, store, userID := newBillingFixture(t, 30)
	ctx := context.Background()

	_, err := store.AdjustBalance(ctx, userID, -50, model.TransactionTypeManual, "", nil)
	require.NoError(t, err)

	result := svc.ChargeUserForModel(ctx, userID, model.DefaultModelID,
		ChargeContext{Mode: model.ModeGen, Images: 1})
	require.False(t, result.Charged)

	balance, err := store.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, -20, balance)
}

func TestChargeUserForModel_NothingDelivered(t *testing.T) {
	svc, store, userID := newBillingFixture(t, 100)
	ctx := context.Background()

	for _, images := range []int{0, -3} {
		result := svc.ChargeUserForModel(ctx, userID, model.DefaultModelID,
			ChargeContext{Mode: model.ModeProduct, Images: images})
		require.False(t, result.Charged)
	}

	balance, err := store.GetBalance(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 100, balance)
}

func TestChargeUserForModel_AnonymousUser(t *testing.T) {
	svc := NewBillingService(memory.New(), model.DefaultModelID)

	result := svc.ChargeUserForModel(context.Background(), "", model.DefaultModelID,
		ChargeContext{Mode: model.ModeGen, Images: 1})
	require.False(t, result.Charged)
}

func TestChargeWritesAuditRow(t *testing.T) {
	svc, _, userID := newBillingFixture(t, 100)
	ctx := context.Background()

	result := svc.ChargeUserForModel(ctx, userID, model.DefaultModelID,
		ChargeContext{Mode: model.ModeGen, Images: 1})
	require.True(t, result.Charged)

	transactions, err := svc.GetTransactions(ctx, userID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, transactions)

	latest := transactions[0]
	require.Equal(t, model.TransactionTypeCharge, latest.Type)
	require.Equal(t, -10, latest.Amount)
	require.Equal(t, 100, latest.BalanceBefore)
	require.Equal(t, 90, latest.BalanceAfter)
}
