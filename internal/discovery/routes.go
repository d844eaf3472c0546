package discovery

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
)

// RegisterRoutes wires discovery routes to the router.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/discovery/devices", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		devices, err := service.Devices()
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeDiscoveryFailed, "Device discovery failed", http.StatusBadGateway, map[string]any{
				"error": err.Error(),
			}, nil)
		}

		formatted := make([]map[string]any, 0, len(devices))
		for _, device := range devices {
			formatted = append(formatted, formatDevice(device, service.cfg.HeosPort))
		}

		return api.WriteList(w, "/v1/discovery/devices", formatted, false)
	}))

	router.Method(http.MethodPost, "/v1/discovery/scan", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		count, durationMs, err := service.Scan()
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrorCodeDiscoveryFailed, "Device discovery failed", http.StatusBadGateway, map[string]any{
				"error": err.Error(),
			}, nil)
		}

		result := map[string]any{
			"object":        "discovery_scan",
			"devices_found": count,
			"duration_ms":   durationMs,
		}
		if at := service.LastScanAt(); at != nil {
			result["scanned_at"] = at.UTC().Format(time.RFC3339)
		}
		return api.WriteAction(w, http.StatusOK, result)
	}))
}

func formatDevice(device Device, cliPort int) map[string]any {
	formatted := map[string]any{
		"object":       "device",
		"udn":          device.UDN,
		"ip":           device.IP,
		"cli_port":     cliPort,
		"location":     device.Location,
		"last_seen_at": device.LastSeenAt.UTC().Format(time.RFC3339),
	}
	if device.Name != "" {
		formatted["name"] = device.Name
	}
	if device.Model != "" {
		formatted["model"] = device.Model
	}
	if device.ModelNumber != "" {
		formatted["model_number"] = device.ModelNumber
	}
	if device.SerialNumber != "" {
		formatted["serial_number"] = device.SerialNumber
	}
	return formatted
}
