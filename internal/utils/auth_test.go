package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestBridgeToken(t *testing.T) {
	secret := "test-secret-key-12345"

	token, err := GenerateBridgeToken("desktop-shell", secret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "desktop-shell", claims["sub"])
	assert.Equal(t, "bridge", claims["type"])

	_, err = ValidateToken(token, "wrong-key")
	assert.Error(t, err, "validation should fail with wrong key")

	_, err = GenerateBridgeToken("x", "", 0)
	assert.Error(t, err)
}

func TestBridgeToken_Expired(t *testing.T) {
	secret := "test-secret-key-12345"
	claims := jwt.MapClaims{
		"sub": "desktop-shell",
		"aud": BridgeAudience,
		"exp": time.Now().Add(-time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ValidateToken(token, secret)
	assert.Error(t, err)
}

func TestBridgeToken_WrongAudience(t *testing.T) {
	secret := "test-secret-key-12345"
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"aud": "other"}).SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = ValidateToken(token, secret)
	assert.Error(t, err)
}

func TestSealSecret_RoundTrip(t *testing.T) {
	sealed, err := SealSecret("hunter2", testKey)
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.False(t, strings.Contains(sealed, "hunter2"))

	// sealing twice is a no-op
	again, err := SealSecret(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, sealed, again)

	plain, err := OpenSecret(sealed, testKey)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", plain)
}

func TestSealSecret_Failures(t *testing.T) {
	_, err := SealSecret("hunter2", "abcd")
	assert.Error(t, err)

	sealed, err := SealSecret("hunter2", testKey)
	require.NoError(t, err)

	_, err = OpenSecret(sealed, "")
	assert.Error(t, err)

	otherKey := strings.Repeat("ff", 32)
	_, err = OpenSecret(sealed, otherKey)
	assert.Error(t, err)

	_, err = OpenSecret(SealedPrefix+"@@@", testKey)
	assert.Error(t, err)
}

func TestSealSecret_NoKeyPassthrough(t *testing.T) {
	v, err := SealSecret("hunter2", "")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)

	v, err = OpenSecret("hunter2", testKey)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", v)
}
