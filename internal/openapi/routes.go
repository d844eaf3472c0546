package openapi

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

// Spec locations tried in order: relative to the repo root when running
// from source, then relative to a binary living under cmd/heos-hub.
var specSearchPaths = []string{
	"assets/openapi/heos-hub.v1.yaml",
	"../../assets/openapi/heos-hub.v1.yaml",
}

// RegisterRoutes serves the API description in YAML and JSON form. Both
// endpoints are public so API explorers can load them without a token.
func RegisterRoutes(router chi.Router) {
	router.Method(http.MethodGet, "/v1/openapi", handleSpecYAML())
	router.Method(http.MethodGet, "/v1/openapi.json", handleSpecJSON())
}

// loadSpec reads the spec from OPENAPI_SPEC_PATH when that points at an
// existing file, falling back to the bundled search paths.
func loadSpec() ([]byte, error) {
	candidates := specSearchPaths
	if envPath := os.Getenv("OPENAPI_SPEC_PATH"); envPath != "" {
		candidates = append([]string{envPath}, specSearchPaths...)
	}

	for _, candidate := range candidates {
		path, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return os.ReadFile(path)
	}
	return nil, errors.New("openapi spec not found")
}

func handleSpecYAML() api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		spec, err := loadSpec()
		if err != nil {
			return apperrors.NewInternalError("OpenAPI specification file not found")
		}

		w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(spec)
		return nil
	}
}

func handleSpecJSON() api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		spec, err := loadSpec()
		if err != nil {
			return apperrors.NewInternalError("OpenAPI specification file not found")
		}

		var parsed any
		if err := yaml.Unmarshal(spec, &parsed); err != nil {
			return apperrors.NewInternalError("Failed to parse OpenAPI specification")
		}
		w.Header().Set("Access-Control-Allow-Origin", "*")
		return api.WriteJSON(w, http.StatusOK, parsed)
	}
}
