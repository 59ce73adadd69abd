package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository/memory"
)

func seedUser(t *testing.T, store *memory.Store, telegramUserID string, balance int) {
	t.Helper()
	require.NoError(t, store.CreateUser(context.Background(), &model.User{
		TelegramUserID: telegramUserID,
		ChatID:         telegramUserID,
		Balance:        balance,
		RefCode:        GenerateRefCode(telegramUserID),
	}))
}

func TestAdminSetUserBalance(t *testing.T) {
	store := memory.New()
	svc := NewAdminService(store)
	ctx := context.Background()
	seedUser(t, store, "100", 30)

	ok, err := svc.SetUserBalance(ctx, "100", 500)
	require.NoError(t, err)
	require.True(t, ok)

	balance, err := store.GetBalance(ctx, "100")
	require.NoError(t, err)
	require.Equal(t, 500, balance)

	ok, err = svc.SetUserBalance(ctx, "nope", 500)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAdminAdjustUserBalance(t *testing.T) {
	store := memory.New()
	svc := NewAdminService(store)
	ctx := context.Background()
	seedUser(t, store, "100", 30)

	user, err := svc.AdjustUserBalance(ctx, "100", -50)
	require.NoError(t, err)
	require.Equal(t, -20, user.Balance)

	transactions, err := store.GetBalanceTransactions(ctx, "100", 10, 0)
	require.NoError(t, err)
	require.Equal(t, model.TransactionTypeManual, transactions[0].Type)
	require.Equal(t, -50, transactions[0].Amount)
}

func TestAdminDeleteUserCascadesReferrals(t *testing.T) {
	store := memory.New()
	userSvc := NewUserService(store)
	adminSvc := NewAdminService(store)
	ctx := context.Background()

	referrer, err := userSvc.GetOrCreateUser(ctx, initDataFor(t, 100, "alice", ""), "")
	require.NoError(t, err)
	_, err = userSvc.GetOrCreateUser(ctx, initDataFor(t, 200, "bob", referrer.RefCode), "")
	require.NoError(t, err)

	deleted, err := adminSvc.DeleteUserByTelegramID(ctx, "200")
	require.NoError(t, err)
	require.True(t, deleted)

	count, err := store.CountReferrals(ctx, "100")
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestAdminDeleteUserByUsername(t *testing.T) {
	store := memory.New()
	userSvc := NewUserService(store)
	adminSvc := NewAdminService(store)
	ctx := context.Background()

	_, err := userSvc.GetOrCreateUser(ctx, initDataFor(t, 100, "alice", ""), "")
	require.NoError(t, err)

	deleted, err := adminSvc.DeleteUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = adminSvc.DeleteUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestAdminPurgeKeepsListedUsers(t *testing.T) {
	store := memory.New()
	svc := NewAdminService(store)
	ctx := context.Background()
	seedUser(t, store, "100", 30)
	seedUser(t, store, "200", 30)
	seedUser(t, store, "300", 30)

	deleted, err := svc.DeleteAllUsersExcept(ctx, []string{"100"})
	require.NoError(t, err)
	require.Equal(t, 2, deleted)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "100", users[0].TelegramUserID)
}

func TestAdminListUsersWithReferralCounts(t *testing.T) {
	store := memory.New()
	userSvc := NewUserService(store)
	adminSvc := NewAdminService(store)
	ctx := context.Background()

	referrer, err := userSvc.GetOrCreateUser(ctx, initDataFor(t, 100, "alice", ""), "")
	require.NoError(t, err)
	_, err = userSvc.GetOrCreateUser(ctx, initDataFor(t, 200, "bob", referrer.RefCode), "")
	require.NoError(t, err)
	_, err = userSvc.GetOrCreateUser(ctx, initDataFor(t, 300, "carol", referrer.RefCode), "")
	require.NoError(t, err)

	users, err := adminSvc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)

	counts := make(map[string]int)
	for _, u := range users {
		counts[u.TelegramUserID] = u.ReferredCount
	}
	require.Equal(t, 2, counts["100"])
	require.Zero(t, counts["200"])
	require.Zero(t, counts["300"])
}
