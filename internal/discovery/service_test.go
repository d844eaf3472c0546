package discovery

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/db"
	"github.com/strefethen/heos-hub-go/internal/history"
)

func newTestService(t *testing.T, cfg config.Config) *Service {
	t.Helper()
	return NewService(cfg, nil, log.New(io.Discard, "", 0))
}

func newTestHistory(t *testing.T) *history.Service {
	t.Helper()
	dbPair, err := db.Init(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dbPair.Close() })
	return history.NewService(config.Config{HistoryRetentionDays: 30}, dbPair, log.New(io.Discard, "", 0))
}

// ==========================================================================
// Tests
// ==========================================================================

func TestService_TestMode(t *testing.T) {
	svc := newTestService(t, config.Config{})
	svc.SetTestMode(true)

	devices, err := svc.Devices()
	require.NoError(t, err)
	assert.Empty(t, devices)

	count, durationMs, err := svc.Scan()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), durationMs)
}

func TestService_InitialState(t *testing.T) {
	svc := newTestService(t, config.Config{})

	assert.Nil(t, svc.LastScanAt())
	assert.True(t, svc.IsHealthy())
}

func TestService_StartPeriodicScan_DisabledWithoutInterval(t *testing.T) {
	svc := newTestService(t, config.Config{SSDPRescanIntervalMs: 0})

	svc.StartPeriodicScan()
	defer svc.StopPeriodicScan()

	svc.periodicMu.Lock()
	running := svc.periodicCancel != nil
	svc.periodicMu.Unlock()
	assert.False(t, running, "zero interval must not start the rescan loop")
}

func TestService_StopPeriodicScan_Idempotent(t *testing.T) {
	svc := newTestService(t, config.Config{})
	svc.StopPeriodicScan()
	svc.StopPeriodicScan()
}

func TestHostFromLocation(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"http://192.168.1.45:60006/upnp/desc/aios_device/aios_device.xml", "192.168.1.45"},
		{"http://192.168.1.45/desc.xml", "192.168.1.45"},
		{"", ""},
		{"://not-a-url", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, hostFromLocation(tc.input))
		})
	}
}

func TestFallbackIPs_MergesStaticAndRemembered(t *testing.T) {
	svc := newTestService(t, config.Config{
		StaticDeviceIPs: []string{" 192.168.1.45 ", "", "192.168.1.50"},
	})
	svc.rememberIPs([]Device{
		{IP: "192.168.1.45"},
		{IP: "192.168.1.60"},
		{IP: ""},
	})

	ips := svc.fallbackIPs()
	assert.ElementsMatch(t, []string{"192.168.1.45", "192.168.1.50", "192.168.1.60"}, ips)
}

func TestFallbackIPs_DropsStaleEntries(t *testing.T) {
	svc := newTestService(t, config.Config{})
	svc.knownIPs["192.168.1.45"] = time.Now().Add(-staleIPThreshold - time.Hour)
	svc.knownIPs["192.168.1.50"] = time.Now()

	ips := svc.fallbackIPs()
	assert.Equal(t, []string{"192.168.1.50"}, ips)
}

func TestRecordNewDevices_OncePerUDN(t *testing.T) {
	historyService := newTestHistory(t)
	svc := NewService(config.Config{}, historyService, log.New(io.Discard, "", 0))

	devices := []Device{
		{IP: "192.168.1.45", UDN: "uuid-kitchen", Name: "Kitchen", Model: "HEOS 5"},
		{IP: "192.168.1.50", UDN: "uuid-den"},
	}

	svc.recordNewDevices(devices)
	svc.recordNewDevices(devices)

	typeFilter := string(history.EventDeviceDiscovered)
	events, total, _, err := historyService.QueryEvents(history.EventQueryFilters{Type: &typeFilter})
	require.NoError(t, err)
	require.Equal(t, 2, total)

	byUDN := make(map[string]map[string]any)
	for _, ev := range events {
		byUDN[ev.Payload["udn"].(string)] = ev.Payload
	}
	require.Contains(t, byUDN, "uuid-kitchen")
	assert.Equal(t, "Kitchen", byUDN["uuid-kitchen"]["name"])
	assert.Equal(t, "HEOS 5", byUDN["uuid-kitchen"]["model"])
	assert.NotContains(t, byUDN["uuid-den"], "name")
}

func TestRecordNewDevices_NilHistory(t *testing.T) {
	svc := newTestService(t, config.Config{})
	svc.recordNewDevices([]Device{{IP: "192.168.1.45", UDN: "uuid-kitchen"}})
}

func TestFetchDevice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(aiosDescription))
	}))
	defer server.Close()

	device, err := FetchDevice(context.Background(), serverHost(t, server), server.URL+"/desc.xml")
	require.NoError(t, err)
	require.NotNil(t, device)

	assert.Equal(t, "Kitchen", device.Name)
	assert.Equal(t, "HEOS 5", device.Model)
	assert.Equal(t, "DWS-0521", device.ModelNumber)
	assert.Equal(t, "ADE0123456789", device.SerialNumber)
	assert.Equal(t, "ea6e8d44-2442-11e4-ba14-0005cdf512a1", device.UDN)
	assert.Equal(t, server.URL+"/desc.xml", device.Location)
	assert.WithinDuration(t, time.Now(), device.LastSeenAt, 5*time.Second)
}

func TestFetchDevice_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	device, err := FetchDevice(context.Background(), serverHost(t, server), server.URL+"/desc.xml")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestFetchDevice_UnusableDescription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<root><device><manufacturer>Denon</manufacturer></device></root>`))
	}))
	defer server.Close()

	device, err := FetchDevice(context.Background(), serverHost(t, server), server.URL+"/desc.xml")
	require.NoError(t, err)
	assert.Nil(t, device)
}

func TestFetchDevice_MissingUDNGetsProbePlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<root><device><friendlyName>Den</friendlyName></device></root>`))
	}))
	defer server.Close()

	host := serverHost(t, server)
	device, err := FetchDevice(context.Background(), host, server.URL+"/desc.xml")
	require.NoError(t, err)
	require.NotNil(t, device)
	assert.Equal(t, "probe_"+host, device.UDN)
}

func TestFormatDevice(t *testing.T) {
	seenAt := time.Date(2026, 3, 15, 7, 30, 0, 0, time.UTC)
	device := Device{
		IP:           "192.168.1.45",
		Name:         "Kitchen",
		Model:        "HEOS 5",
		ModelNumber:  "DWS-0521",
		SerialNumber: "ADE0123456789",
		UDN:          "uuid-kitchen",
		Location:     "http://192.168.1.45:60006/desc.xml",
		LastSeenAt:   seenAt,
	}

	formatted := formatDevice(device, 1255)

	assert.Equal(t, "device", formatted["object"])
	assert.Equal(t, "uuid-kitchen", formatted["udn"])
	assert.Equal(t, "192.168.1.45", formatted["ip"])
	assert.Equal(t, 1255, formatted["cli_port"])
	assert.Equal(t, "Kitchen", formatted["name"])
	assert.Equal(t, "HEOS 5", formatted["model"])
	assert.Equal(t, "DWS-0521", formatted["model_number"])
	assert.Equal(t, "ADE0123456789", formatted["serial_number"])
	assert.Equal(t, "2026-03-15T07:30:00Z", formatted["last_seen_at"])
}

func TestFormatDevice_BareEndpoint(t *testing.T) {
	formatted := formatDevice(Device{IP: "192.168.1.45", UDN: "uuid-x", LastSeenAt: time.Now()}, 1255)

	assert.NotContains(t, formatted, "name")
	assert.NotContains(t, formatted, "model")
	assert.NotContains(t, formatted, "model_number")
	assert.NotContains(t, formatted, "serial_number")
}

func serverHost(t *testing.T, server *httptest.Server) string {
	t.Helper()
	parsed, err := url.Parse(server.URL)
	require.NoError(t, err)
	return parsed.Hostname()
}
