package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bananagen/backend/internal/repository/memory"
)

func TestGetReferralStats(t *testing.T) {
	store := memory.New()
	userSvc := NewUserService(store)
	refSvc := NewReferralService(store)
	ctx := context.Background()

	referrer, err := userSvc.GetOrCreateUser(ctx, initDataFor(t, 100, "alice", ""), "")
	require.NoError(t, err)
	_, err = userSvc.GetOrCreateUser(ctx, initDataFor(t, 200, "bob", referrer.RefCode), "")
	require.NoError(t, err)

	stats, err := refSvc.GetReferralStats(ctx, "100")
	require.NoError(t, err)
	require.NotNil(t, stats.RefCode)
	require.Equal(t, referrer.RefCode, *stats.RefCode)
	require.Equal(t, 1, stats.ReferredCount)
}

func TestGetReferralStats_UnknownUser(t *testing.T) {
	refSvc := NewReferralService(memory.New())

	stats, err := refSvc.GetReferralStats(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, stats.RefCode)
	require.Zero(t, stats.ReferredCount)
}

func TestGetReferralLink(t *testing.T) {
	store := memory.New()
	userSvc := NewUserService(store)
	refSvc := NewReferralService(store)
	ctx := context.Background()

	user, err := userSvc.GetOrCreateUser(ctx, initDataFor(t, 100, "alice", ""), "")
	require.NoError(t, err)

	link, err := refSvc.GetReferralLink(ctx, "100", "BananaGenBot")
	require.NoError(t, err)
	require.Equal(t, "https://t.me/BananaGenBot?startapp="+user.RefCode, link)
}

func TestGetReferredUsers(t *testing.T) {
	store := memory.New()
	userSvc := NewUserService(store)
	refSvc := NewReferralService(store)
	ctx := context.Background()

	referrer, err := userSvc.GetOrCreateUser(ctx, initDataFor(t, 100, "alice", ""), "")
	require.NoError(t, err)
	_, err = userSvc.GetOrCreateUser(ctx, initDataFor(t, 200, "bob", referrer.RefCode), "")
	require.NoError(t, err)
	_, err = userSvc.GetOrCreateUser(ctx, initDataFor(t, 300, "carol", referrer.RefCode), "")
	require.NoError(t, err)

	referred, err := refSvc.GetReferredUsers(ctx, "100")
	require.NoError(t, err)
	require.Len(t, referred, 2)
}
