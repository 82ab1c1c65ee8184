package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T, ttl time.Duration) *Signer {
	t.Helper()
	s, err := NewSignerFromBase64(GenerateSecureSecret(), ttl)
	require.NoError(t, err)
	return s
}

// TestGenerateAndValidate проверяет выпуск и разбор токена
func TestGenerateAndValidate(t *testing.T) {
	s := newTestSigner(t, time.Hour)

	token, err := s.Generate("alex", true)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(token, "."), "JWT состоит из трёх частей")

	claims, err := s.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alex", claims.Viewer)
	assert.True(t, claims.Control)
	assert.Equal(t, "replay-engine", claims.Issuer)
}

// TestValidateInvalid проверяет отказ для чужих и испорченных токенов
func TestValidateInvalid(t *testing.T) {
	s := newTestSigner(t, time.Hour)
	other := newTestSigner(t, time.Hour)
	foreign, err := other.Generate("alex", false)
	require.NoError(t, err)

	expiredSigner := newTestSigner(t, time.Hour)
	expiredSigner.ttl = -time.Minute
	expired, err := expiredSigner.Generate("alex", false)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Viewer: "alex"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"мусор":          "invalid.token.here",
		"пустой":         "",
		"чужая подпись":  foreign,
		"без подписи":    unsigned,
		"срок истёк":     expired,
		"обрезанный":     foreign[:len(foreign)-4],
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Validate(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewSigner(t *testing.T) {
	_, err := NewSigner([]byte("short"), 0)
	assert.ErrorIs(t, err, ErrWeakSecret)

	_, err = NewSignerFromBase64("%%%", 0)
	assert.Error(t, err)

	random, err := NewSigner(nil, 0)
	require.NoError(t, err)
	assert.Len(t, random.secret, 32)
	assert.Equal(t, 24*time.Hour, random.ttl)
}
