package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/config"
)

func authTestConfig() config.Config {
	return config.Config{
		JWTSecret:                "unit-test-secret-0123456789abcdef",
		JWTAccessTokenExpirySec:  900,
		JWTRefreshTokenExpirySec: 2592000,
	}
}

func TestGenerateTokenPair(t *testing.T) {
	cfg := authTestConfig()

	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "device-1", DeviceName: "Den iPad"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, 900, pair.ExpiresInSec)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := VerifyToken(cfg, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "device-1", access.Sub)
	assert.Equal(t, "Den iPad", access.DeviceName)
	assert.Equal(t, TokenTypeAccess, access.Type)

	refresh, err := VerifyToken(cfg, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refresh.Type)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	cfg := authTestConfig()
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "device-1", DeviceName: "Den iPad"})
	require.NoError(t, err)

	other := cfg
	other.JWTSecret = "a-completely-different-secret-value"
	_, err = VerifyToken(other, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyToken_Expired(t *testing.T) {
	cfg := authTestConfig()
	cfg.JWTAccessTokenExpirySec = -10

	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "device-1", DeviceName: "Den iPad"})
	require.NoError(t, err)

	_, err = VerifyToken(cfg, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyToken_Garbage(t *testing.T) {
	_, err := VerifyToken(authTestConfig(), "not.a.token")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyToken_WrongSigningMethod(t *testing.T) {
	cfg := authTestConfig()

	claims := jwt.MapClaims{
		"sub":        "device-1",
		"deviceName": "Den iPad",
		"type":       "access",
		"iss":        tokenIssuer,
		"aud":        tokenAudience,
		"exp":        time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	_, err = VerifyToken(cfg, signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyToken_MissingSubject(t *testing.T) {
	cfg := authTestConfig()
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "", DeviceName: "Den iPad"})
	require.NoError(t, err)

	_, err = VerifyToken(cfg, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRefreshAccessToken(t *testing.T) {
	cfg := authTestConfig()
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "device-1", DeviceName: "Den iPad"})
	require.NoError(t, err)

	accessToken, expiresIn, err := RefreshAccessToken(cfg, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 900, expiresIn)

	payload, err := VerifyToken(cfg, accessToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, payload.Type)
	assert.Equal(t, "device-1", payload.Sub)
	assert.Equal(t, "Den iPad", payload.DeviceName)
}

func TestRefreshAccessToken_RejectsAccessToken(t *testing.T) {
	cfg := authTestConfig()
	pair, err := GenerateTokenPair(cfg, TokenPayload{Sub: "device-1", DeviceName: "Den iPad"})
	require.NoError(t, err)

	_, _, err = RefreshAccessToken(cfg, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenType)
}

func TestRefreshAccessToken_InvalidToken(t *testing.T) {
	_, _, err := RefreshAccessToken(authTestConfig(), "garbage")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}
