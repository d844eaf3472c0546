package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/config"
)

// RegisterRoutes wires the pairing and token endpoints. All three are public;
// the middleware lets them through by path.
func RegisterRoutes(router chi.Router, store *PairingStore, cfg config.Config) {
	router.Method(http.MethodPost, "/v1/auth/pair/start", handlePairStart(store))
	router.Method(http.MethodPost, "/v1/auth/pair/complete", handlePairComplete(store, cfg))
	router.Method(http.MethodPost, "/v1/auth/refresh", handleRefresh(cfg))
}

func handlePairStart(store *PairingStore) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		store.CleanupExpired()

		code, err := store.Create(api.GetRequestID(r))
		if err != nil {
			return apperrors.NewInternalError("Failed to generate pairing code")
		}
		log.Printf("Pairing code issued: %s", code)

		return api.WriteAction(w, http.StatusOK, map[string]any{
			"object":       "pairing_start",
			"pairing_hint": "Pair your device with this one-time code. Code: " + code,
		})
	}
}

func handlePairComplete(store *PairingStore, cfg config.Config) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			PairCode   string `json:"pair_code"`
			DeviceName string `json:"device_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PairCode == "" {
			return apperrors.NewValidationError("pair_code is required", nil)
		}
		if body.DeviceName == "" {
			return apperrors.NewValidationError("device_name is required", nil)
		}

		_, ok, expired := store.Lookup(body.PairCode)
		switch {
		case !ok:
			return apperrors.NewUnauthorizedError("Invalid or expired pairing code", apperrors.ErrorCodeAuthPairingInvalid)
		case expired:
			// Burn the code so a late retry cannot revive it.
			store.Consume(body.PairCode)
			return apperrors.NewUnauthorizedError("Pairing code has expired", apperrors.ErrorCodeAuthPairingExpired)
		}
		store.Consume(body.PairCode)

		payload := TokenPayload{Sub: uuid.NewString(), DeviceName: body.DeviceName}
		tokens, err := GenerateTokenPair(cfg, payload)
		if err != nil {
			return apperrors.NewInternalError("Failed to generate token pair")
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_pair",
			"access_token":   tokens.AccessToken,
			"refresh_token":  tokens.RefreshToken,
			"expires_in_sec": tokens.ExpiresInSec,
		})
	}
}

func handleRefresh(cfg config.Config) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		var body struct {
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RefreshToken == "" {
			return apperrors.NewValidationError("refresh_token is required", nil)
		}

		accessToken, expiresIn, err := RefreshAccessToken(cfg, body.RefreshToken)
		switch {
		case errors.Is(err, ErrTokenExpired):
			return apperrors.NewUnauthorizedError("Refresh token has expired", apperrors.ErrorCodeAuthTokenExpired)
		case errors.Is(err, ErrTokenType):
			return apperrors.NewUnauthorizedError("Invalid token: expected refresh token", apperrors.ErrorCodeAuthTokenInvalid)
		case err != nil:
			return apperrors.NewUnauthorizedError("Invalid refresh token", apperrors.ErrorCodeAuthTokenInvalid)
		}

		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":         "token_refresh",
			"access_token":   accessToken,
			"expires_in_sec": expiresIn,
		})
	}
}
