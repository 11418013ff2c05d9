package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueAndVerify(t *testing.T) {
	token, err := Issue("user-1", "u@example.com", "User One", testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := Verify(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Sub)
	assert.Equal(t, "u@example.com", claims.Email)
	assert.Equal(t, "User One", claims.Name)
	assert.Greater(t, claims.Exp, claims.Iat)
	assert.Equal(t, int64(3600), claims.Exp-claims.Iat)
}

func TestIssueWithoutSecret(t *testing.T) {
	_, err := Issue("user-1", "", "", "", time.Hour)
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestVerifyExpired(t *testing.T) {
	token, err := Issue("user-1", "", "", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = Verify(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	token, err := Issue("user-1", "", "", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = Verify(token, "other-secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTampered(t *testing.T) {
	token, err := Issue("user-1", "", "", testSecret, time.Hour)
	require.NoError(t, err)

	tampered := token[:len(token)-3] + "xxx"
	_, err = Verify(tampered, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbage(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := Verify(tok, testSecret)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", tok)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	// A token signed with none must not pass HMAC verification.
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "user-1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Verify(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsEmptySubject(t *testing.T) {
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := signed.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = Verify(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"iat": time.Now().Unix(),
	})
	token, err := signed.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = Verify(token, testSecret)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
