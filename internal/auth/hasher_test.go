package auth_test

import (
	"context"
	"testing"

	"github.com/d9705996/confera/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	hash, err := h.Hash(context.Background(), "s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	require.NoError(t, h.Compare(context.Background(), hash, "s3cret-pass"))
	require.ErrorIs(t, h.Compare(context.Background(), hash, "wrong"), auth.ErrPasswordMismatch)
}

func TestHasher_CompareMalformedHash(t *testing.T) {
	h, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	err = h.Compare(context.Background(), "not-a-bcrypt-hash", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, auth.ErrPasswordMismatch)
}

func TestHasher_CancelledContext(t *testing.T) {
	h, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Hash(ctx, "pw")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewHasher_RejectsOutOfRangeCost(t *testing.T) {
	_, err := auth.NewHasher(bcrypt.MaxCost + 1)
	require.Error(t, err)
}
