package api

import (
	"log"
	"net/http"

	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

// Handler is an http.Handler whose body may return an error. Returned errors
// are rendered through the standard error envelope.
type Handler func(w http.ResponseWriter, r *http.Request) error

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h(w, r); err != nil {
		WriteError(w, r, err)
	}
}

// RecovererMiddleware turns handler panics into 500 responses instead of
// dropped connections.
func RecovererMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				log.Printf("panic recovered [%s]: %v", GetRequestID(r), v)
				WriteError(w, r, apperrors.NewInternalError("Internal server error"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
