package settings

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strefethen/heos-hub-go/internal/api"
	"github.com/strefethen/heos-hub-go/internal/apperrors"
	"github.com/strefethen/heos-hub-go/internal/heos"
)

// ConnectionSettings holds the stored HEOS device address and account
// credentials. They are applied when the hub (re)connects.
type ConnectionSettings struct {
	DeviceHost      string    `json:"device_host"`
	DevicePort      int       `json:"device_port"`
	AccountUsername string    `json:"account_username"`
	AccountPassword string    `json:"-"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasAccount reports whether stored credentials are usable for sign-in.
func (s ConnectionSettings) HasAccount() bool {
	return s.AccountUsername != "" && s.AccountPassword != ""
}

// UpdateConnectionInput carries the PUT body. Nil fields are left unchanged.
type UpdateConnectionInput struct {
	DeviceHost      *string `json:"device_host,omitempty"`
	DevicePort      *int    `json:"device_port,omitempty"`
	AccountUsername *string `json:"account_username,omitempty"`
	AccountPassword *string `json:"account_password,omitempty"`
}

// DBPair is the slice of db.DBPair the service needs.
type DBPair interface {
	Reader() *sql.DB
	Writer() *sql.DB
}

// Service reads and writes the persisted connection settings.
type Service struct {
	reader *sql.DB
	writer *sql.DB
	logger *log.Logger
}

// NewService returns a Service backed by dbPair. A nil logger falls back to
// the standard logger.
func NewService(dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{reader: dbPair.Reader(), writer: dbPair.Writer(), logger: logger}
}

// RegisterRoutes wires the connection settings endpoints.
func RegisterRoutes(router chi.Router, service *Service) {
	router.Method(http.MethodGet, "/v1/settings/connection", getConnectionSettings(service))
	router.Method(http.MethodPut, "/v1/settings/connection", updateConnectionSettings(service))
}

func getConnectionSettings(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		settings, err := service.GetConnectionSettings()
		if err != nil {
			return apperrors.NewInternalError("Failed to get connection settings")
		}

		return api.WriteResource(w, http.StatusOK, formatConnectionSettings(settings))
	}
}

func updateConnectionSettings(service *Service) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		var input UpdateConnectionInput
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			return apperrors.NewValidationError("invalid request body", nil)
		}
		if input.DevicePort != nil && (*input.DevicePort < 1 || *input.DevicePort > 65535) {
			return apperrors.NewValidationError("device_port must be between 1 and 65535", map[string]any{
				"device_port": *input.DevicePort,
			})
		}

		settings, err := service.UpdateConnectionSettings(input)
		if err != nil {
			return apperrors.NewInternalError("Failed to update connection settings")
		}

		return api.WriteResource(w, http.StatusOK, formatConnectionSettings(settings))
	}
}

// GetConnectionSettings returns the stored connection settings. Before
// anything has been saved it returns zero-value settings carrying the
// default HEOS port, so callers always get a usable port.
func (s *Service) GetConnectionSettings() (*ConnectionSettings, error) {
	var (
		host, username, password sql.NullString
		port                     sql.NullInt64
		updatedAt                string
	)
	row := s.reader.QueryRow(`
		SELECT device_host, device_port, account_username, account_password, updated_at
		FROM settings
		WHERE setting_key = 'connection'
	`)
	err := row.Scan(&host, &port, &username, &password, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &ConnectionSettings{DevicePort: heos.DefaultPort, UpdatedAt: time.Now().UTC()}, nil
	}
	if err != nil {
		return nil, err
	}

	settings := ConnectionSettings{
		DeviceHost:      host.String,
		DevicePort:      int(port.Int64),
		AccountUsername: username.String,
		AccountPassword: password.String,
		UpdatedAt:       parseStoredTime(updatedAt),
	}
	if settings.DevicePort == 0 {
		settings.DevicePort = heos.DefaultPort
	}
	return &settings, nil
}

// UpdateConnectionSettings merges non-nil input fields into the stored
// settings and persists the result.
func (s *Service) UpdateConnectionSettings(input UpdateConnectionInput) (*ConnectionSettings, error) {
	current, err := s.GetConnectionSettings()
	if err != nil {
		return nil, err
	}

	if input.DeviceHost != nil {
		current.DeviceHost = *input.DeviceHost
	}
	if input.DevicePort != nil {
		current.DevicePort = *input.DevicePort
	}
	if input.AccountUsername != nil {
		current.AccountUsername = *input.AccountUsername
	}
	if input.AccountPassword != nil {
		current.AccountPassword = *input.AccountPassword
	}

	if err := s.save(current); err != nil {
		return nil, err
	}
	if input.DeviceHost != nil || input.DevicePort != nil {
		s.logger.Printf("HEOS device target set to %s:%d", current.DeviceHost, current.DevicePort)
	}
	return current, nil
}

// SaveAccount persists account credentials, leaving the device address alone.
// Called after a live sign-in succeeds so the next restart re-authenticates.
func (s *Service) SaveAccount(username, password string) error {
	current, err := s.GetConnectionSettings()
	if err != nil {
		return err
	}
	current.AccountUsername = username
	current.AccountPassword = password
	return s.save(current)
}

// ClearAccount removes stored account credentials.
func (s *Service) ClearAccount() error {
	current, err := s.GetConnectionSettings()
	if err != nil {
		return err
	}
	current.AccountUsername = ""
	current.AccountPassword = ""
	return s.save(current)
}

// save upserts the connection row, stamping UpdatedAt on the way out.
func (s *Service) save(settings *ConnectionSettings) error {
	settings.UpdatedAt = time.Now().UTC()

	_, err := s.writer.Exec(`
		INSERT INTO settings (setting_key, device_host, device_port, account_username, account_password, updated_at)
		VALUES ('connection', ?, ?, ?, ?, ?)
		ON CONFLICT(setting_key) DO UPDATE SET
			device_host = excluded.device_host,
			device_port = excluded.device_port,
			account_username = excluded.account_username,
			account_password = excluded.account_password,
			updated_at = excluded.updated_at
	`, settings.DeviceHost, settings.DevicePort, settings.AccountUsername, settings.AccountPassword,
		settings.UpdatedAt.Format(time.RFC3339))
	return err
}

// parseStoredTime reads timestamps written by this service (RFC 3339) as
// well as rows created by SQLite datetime defaults.
func parseStoredTime(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts
	}
	ts, _ := time.Parse("2006-01-02 15:04:05", value)
	return ts
}

// formatConnectionSettings formats ConnectionSettings for JSON response.
// The password itself is never returned.
func formatConnectionSettings(settings *ConnectionSettings) map[string]any {
	return map[string]any{
		"object":               "connection_settings",
		"device_host":          settings.DeviceHost,
		"device_port":          settings.DevicePort,
		"account_username":     settings.AccountUsername,
		"account_password_set": settings.AccountPassword != "",
		"updated_at":           settings.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
