package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPriceForModel(t *testing.T) {
	require.Equal(t, 10, PriceForModel("google/gemini-2.5-flash-image"))
	require.Equal(t, 25, PriceForModel("google/gemini-3-pro-image-preview"))
	require.Zero(t, PriceForModel("unknown/model"))
}

func TestIsKnownModel(t *testing.T) {
	require.True(t, IsKnownModel(DefaultModelID))
	require.False(t, IsKnownModel(""))
	require.False(t, IsKnownModel("unknown/model"))
}

func TestMultiplier(t *testing.T) {
	require.Equal(t, 1, Multiplier(ModeGen, 0))
	require.Equal(t, 1, Multiplier(ModeRef, 7))
	require.Equal(t, ProductImageCount, Multiplier(ModeProduct, 2))
	require.Equal(t, 3, Multiplier(ModePoses, 3))
	require.Equal(t, 1, Multiplier(ModePoses, 0))
	require.Equal(t, MaxPosesCount, Multiplier(ModePoses, 15))
}

func TestClampPosesCount(t *testing.T) {
	require.Equal(t, 1, ClampPosesCount(-2))
	require.Equal(t, 1, ClampPosesCount(0))
	require.Equal(t, 5, ClampPosesCount(5))
	require.Equal(t, 10, ClampPosesCount(10))
	require.Equal(t, 10, ClampPosesCount(11))
}

func TestAvailableModels(t *testing.T) {
	models := AvailableModels()
	require.Len(t, models, 2)
	for _, m := range models {
		require.NotEmpty(t, m.ID)
		require.Positive(t, m.Price)
	}
}
