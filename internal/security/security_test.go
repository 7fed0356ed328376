package security_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keikkaduuni/internal/security"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	tok, err := svc.CreateForUser(42)
	require.NoError(t, err)

	id, err := svc.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestTokenRejected(t *testing.T) {
	svc := security.NewTokenService("secret", time.Hour)

	t.Run("Expired", func(t *testing.T) {
		tok, err := svc.CreateWithTTL(7, -time.Minute)
		require.NoError(t, err)
		_, err = svc.Parse(tok)
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		other := security.NewTokenService("other", time.Hour)
		tok, err := other.CreateForUser(7)
		require.NoError(t, err)
		_, err = svc.Parse(tok)
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := svc.Parse("not-a-jwt")
		assert.ErrorIs(t, err, security.ErrInvalidToken)
	})
}

func TestPasswordHasher(t *testing.T) {
	h := security.NewPasswordHasher(4)

	hashed, err := h.Hash("hunter22")
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", hashed)

	assert.NoError(t, h.Verify("hunter22", hashed))
	assert.Error(t, h.Verify("wrong", hashed))
}
