package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/strefethen/heos-hub-go/internal/config"
)

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	tokenIssuer   = "heos-hub"
	tokenAudience = "heos-hub-client"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
)

// TokenPayload is the identity carried inside a verified token.
type TokenPayload struct {
	Sub        string
	DeviceName string
	Type       TokenType
}

// TokenPair bundles the tokens handed out by the pairing and refresh flows.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

type hubClaims struct {
	DeviceName string    `json:"deviceName"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// GenerateTokenPair mints an access and a refresh token for one device.
func GenerateTokenPair(cfg config.Config, payload TokenPayload) (TokenPair, error) {
	access, err := mintToken(cfg, payload.Sub, payload.DeviceName, TokenTypeAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := mintToken(cfg, payload.Sub, payload.DeviceName, TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresInSec: cfg.JWTAccessTokenExpirySec,
	}, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access token.
func RefreshAccessToken(cfg config.Config, refreshToken string) (string, int, error) {
	payload, err := VerifyToken(cfg, refreshToken)
	if err != nil {
		return "", 0, err
	}
	if payload.Type != TokenTypeRefresh {
		return "", 0, ErrTokenType
	}
	access, err := mintToken(cfg, payload.Sub, payload.DeviceName, TokenTypeAccess)
	if err != nil {
		return "", 0, err
	}
	return access, cfg.JWTAccessTokenExpirySec, nil
}

// VerifyToken checks signature, issuer, audience, and expiry, and returns
// the embedded identity.
func VerifyToken(cfg config.Config, token string) (TokenPayload, error) {
	var claims hubClaims
	parsed, err := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
	).ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWTSecret), nil
	})
	if errors.Is(err, jwt.ErrTokenExpired) {
		return TokenPayload{}, ErrTokenExpired
	}
	if err != nil || parsed == nil || !parsed.Valid {
		return TokenPayload{}, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.DeviceName == "" {
		return TokenPayload{}, ErrTokenInvalid
	}
	if claims.Type != TokenTypeAccess && claims.Type != TokenTypeRefresh {
		return TokenPayload{}, ErrTokenInvalid
	}
	return TokenPayload{
		Sub:        claims.Subject,
		DeviceName: claims.DeviceName,
		Type:       claims.Type,
	}, nil
}

func mintToken(cfg config.Config, sub, deviceName string, tokenType TokenType) (string, error) {
	lifetime := cfg.JWTAccessTokenExpirySec
	if tokenType == TokenTypeRefresh {
		lifetime = cfg.JWTRefreshTokenExpirySec
	}

	now := time.Now()
	claims := hubClaims{
		DeviceName: deviceName,
		Type:       tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(lifetime) * time.Second)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
}
