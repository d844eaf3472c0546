package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/config"
)

// Middleware enforces bearer token auth on everything under /v1 except the
// pairing, health, and openapi endpoints.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if testModeBypass(r, cfg) {
				ctx := WithUser(r.Context(), User{
					Sub:        "test-device",
					DeviceName: "Test Device",
					Type:       TokenTypeAccess,
				})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Missing or malformed Authorization header"))
				return
			}

			payload, err := VerifyToken(cfg, token)
			switch {
			case errors.Is(err, ErrTokenExpired):
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
				return
			case err != nil:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			case payload.Type != TokenTypeAccess:
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token type", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			ctx := WithUser(r.Context(), User{
				Sub:        payload.Sub,
				DeviceName: payload.DeviceName,
				Type:       payload.Type,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// publicPath reports whether the path is reachable without a token.
func publicPath(path string) bool {
	switch path {
	case "/v1/auth/pair/start", "/v1/auth/pair/complete", "/v1/auth/refresh":
		return true
	}
	return strings.HasPrefix(path, "/v1/health") || strings.HasPrefix(path, "/v1/openapi")
}

// testModeBypass is a development convenience for driving the API without a
// pairing flow. It is inert unless explicitly enabled in a dev environment.
func testModeBypass(r *http.Request, cfg config.Config) bool {
	return cfg.AllowTestMode && cfg.Env == "development" && r.Header.Get("x-test-mode") == "true"
}

func bearerToken(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
