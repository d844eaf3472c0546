package discovery

import (
	"context"
	"log"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/strefethen/heos-hub-go/internal/config"
	"github.com/strefethen/heos-hub-go/internal/history"
)

// Addresses that answered within this window are re-probed on later scans
// even when multicast misses them.
const staleIPThreshold = 7 * 24 * time.Hour

// probeTimeout bounds the description fetch for a single device.
const probeTimeout = 10 * time.Second

type scanResult struct {
	devices    int
	durationMs int64
	err        error
}

// Service discovers HEOS devices on the local network and caches the
// results. Scans combine multicast search with probes of statically
// configured and previously seen addresses.
type Service struct {
	cfg     config.Config
	logger  *log.Logger
	history *history.Service

	devicesMu  sync.RWMutex
	devices    []Device
	lastScanAt time.Time
	lastErr    error

	knownMu  sync.Mutex
	knownIPs map[string]time.Time
	seenUDNs map[string]struct{}

	scanMu      sync.Mutex
	scanRunning bool
	scanWaiters []chan scanResult

	periodicMu     sync.Mutex
	periodicCancel context.CancelFunc

	testMode bool
}

// NewService creates a discovery service. historyService may be nil;
// discovered devices then go unrecorded.
func NewService(cfg config.Config, historyService *history.Service, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:      cfg,
		logger:   logger,
		history:  historyService,
		knownIPs: make(map[string]time.Time),
		seenUDNs: make(map[string]struct{}),
	}
}

// SetTestMode enables or disables test mode. In test mode network scans are
// skipped and empty results are returned.
func (s *Service) SetTestMode(enabled bool) {
	s.testMode = enabled
}

// Devices returns the latest scan results, scanning first if nothing has
// been discovered yet.
func (s *Service) Devices() ([]Device, error) {
	s.devicesMu.RLock()
	if !s.lastScanAt.IsZero() {
		devices := append([]Device(nil), s.devices...)
		s.devicesMu.RUnlock()
		return devices, nil
	}
	s.devicesMu.RUnlock()

	if s.testMode {
		return []Device{}, nil
	}

	if _, err := s.performScan(); err != nil {
		return []Device{}, err
	}

	s.devicesMu.RLock()
	defer s.devicesMu.RUnlock()
	return append([]Device(nil), s.devices...), nil
}

// Scan runs a discovery scan, joining one already in flight, and reports
// the device count and elapsed time.
func (s *Service) Scan() (int, int64, error) {
	if s.testMode {
		return 0, 0, nil
	}
	result, err := s.performScan()
	return result.devices, result.durationMs, err
}

// LastScanAt returns when the last successful scan completed, or nil if
// none has.
func (s *Service) LastScanAt() *time.Time {
	s.devicesMu.RLock()
	defer s.devicesMu.RUnlock()
	if s.lastScanAt.IsZero() {
		return nil
	}
	t := s.lastScanAt
	return &t
}

// IsHealthy reports false only when scanning has never succeeded and the
// latest attempt failed.
func (s *Service) IsHealthy() bool {
	s.devicesMu.RLock()
	defer s.devicesMu.RUnlock()
	if s.lastErr != nil && s.lastScanAt.IsZero() {
		return false
	}
	return true
}

// StartPeriodicScan begins rescanning at the configured interval. The first
// scan runs immediately.
func (s *Service) StartPeriodicScan() {
	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()

	if s.periodicCancel != nil {
		return
	}
	if s.cfg.SSDPRescanIntervalMs <= 0 {
		s.logger.Print("Periodic discovery disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.periodicCancel = cancel

	s.logger.Printf("Starting periodic discovery interval=%dms", s.cfg.SSDPRescanIntervalMs)

	go func() {
		ticker := time.NewTicker(time.Duration(s.cfg.SSDPRescanIntervalMs) * time.Millisecond)
		defer ticker.Stop()

		if _, err := s.performScan(); err != nil {
			s.logger.Printf("Initial discovery scan failed: %v", err)
		}

		for {
			select {
			case <-ticker.C:
				if _, err := s.performScan(); err != nil {
					s.logger.Printf("Periodic discovery scan failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// StopPeriodicScan stops the rescan loop.
func (s *Service) StopPeriodicScan() {
	s.periodicMu.Lock()
	defer s.periodicMu.Unlock()
	if s.periodicCancel != nil {
		s.periodicCancel()
		s.periodicCancel = nil
	}
}

// performScan collapses concurrent callers onto a single scan. Late callers
// wait for the in-flight scan and share its result.
func (s *Service) performScan() (scanResult, error) {
	s.scanMu.Lock()
	if s.scanRunning {
		ch := make(chan scanResult, 1)
		s.scanWaiters = append(s.scanWaiters, ch)
		s.scanMu.Unlock()
		result := <-ch
		return result, result.err
	}
	s.scanRunning = true
	s.scanMu.Unlock()

	result := s.runScan()

	s.scanMu.Lock()
	waiters := s.scanWaiters
	s.scanWaiters = nil
	s.scanRunning = false
	s.scanMu.Unlock()

	for _, ch := range waiters {
		ch <- result
		close(ch)
	}

	return result, result.err
}

// DiscoverDevices runs a multicast search and resolves each reply into a
// Device. A reply whose description cannot be fetched still yields a bare
// endpoint entry; the address alone is a usable candidate.
func DiscoverDevices(ctx context.Context, passes int, passInterval, timeout time.Duration) ([]Device, error) {
	responses, err := Search(ctx, passes, passInterval, timeout)
	if err != nil {
		return nil, err
	}

	devices := make([]Device, 0, len(responses))
	seen := make(map[string]struct{})

	for _, resp := range responses {
		ip := hostFromLocation(resp.Location)
		if ip == "" {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}

		// Fresh context per probe so one slow device cannot eat the whole
		// scan budget.
		probeCtx, probeCancel := context.WithTimeout(context.Background(), probeTimeout)
		device, err := FetchDevice(probeCtx, ip, resp.Location)
		probeCancel()

		if err != nil || device == nil {
			devices = append(devices, Device{
				IP:         ip,
				UDN:        resp.USN,
				Location:   resp.Location,
				LastSeenAt: time.Now(),
			})
			continue
		}
		devices = append(devices, *device)
	}

	return devices, nil
}

func (s *Service) runScan() scanResult {
	start := time.Now()

	timeout := time.Duration(s.cfg.SSDPDiscoveryTimeoutMs) * time.Millisecond
	passInterval := time.Duration(s.cfg.SSDPPassIntervalMs) * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), timeout+time.Duration(s.cfg.SSDPDiscoveryPasses)*passInterval)
	defer cancel()

	found, err := DiscoverDevices(ctx, s.cfg.SSDPDiscoveryPasses, passInterval, timeout)
	if err != nil {
		s.devicesMu.Lock()
		s.lastErr = err
		s.devicesMu.Unlock()
		return scanResult{err: err}
	}

	seenIPs := make(map[string]struct{}, len(found))
	for _, device := range found {
		seenIPs[device.IP] = struct{}{}
	}

	// Probe configured and remembered addresses that the multicast search
	// missed.
	for _, ip := range s.fallbackIPs() {
		if _, ok := seenIPs[ip]; ok {
			continue
		}

		probeCtx, probeCancel := context.WithTimeout(context.Background(), probeTimeout)
		device, err := ProbeDevice(probeCtx, ip)
		probeCancel()

		if err != nil {
			s.logger.Printf("Fallback probe failed for %s: %v", ip, err)
			continue
		}
		if device == nil {
			continue
		}
		seenIPs[ip] = struct{}{}
		found = append(found, *device)
	}

	s.rememberIPs(found)
	s.recordNewDevices(found)

	s.devicesMu.Lock()
	s.devices = found
	s.lastScanAt = time.Now()
	s.lastErr = nil
	s.devicesMu.Unlock()

	durationMs := time.Since(start).Milliseconds()
	s.logger.Printf("Discovery scan complete: %d devices in %dms", len(found), durationMs)

	return scanResult{devices: len(found), durationMs: durationMs}
}

// fallbackIPs merges static configuration with recently seen addresses,
// deduplicated, stale entries dropped.
func (s *Service) fallbackIPs() []string {
	s.knownMu.Lock()
	cutoff := time.Now().Add(-staleIPThreshold)
	for ip, seenAt := range s.knownIPs {
		if seenAt.Before(cutoff) {
			delete(s.knownIPs, ip)
		}
	}
	remembered := make([]string, 0, len(s.knownIPs))
	for ip := range s.knownIPs {
		remembered = append(remembered, ip)
	}
	s.knownMu.Unlock()

	seen := make(map[string]struct{})
	result := make([]string, 0, len(s.cfg.StaticDeviceIPs)+len(remembered))
	for _, ip := range append(append([]string{}, s.cfg.StaticDeviceIPs...), remembered...) {
		ip = strings.TrimSpace(ip)
		if ip == "" {
			continue
		}
		if _, dup := seen[ip]; dup {
			continue
		}
		seen[ip] = struct{}{}
		result = append(result, ip)
	}
	return result
}

func (s *Service) rememberIPs(devices []Device) {
	s.knownMu.Lock()
	defer s.knownMu.Unlock()
	now := time.Now()
	for _, device := range devices {
		if device.IP != "" {
			s.knownIPs[device.IP] = now
		}
	}
}

// recordNewDevices writes a history event for each device seen for the
// first time since startup.
func (s *Service) recordNewDevices(devices []Device) {
	s.knownMu.Lock()
	fresh := make([]Device, 0)
	for _, device := range devices {
		if _, ok := s.seenUDNs[device.UDN]; ok {
			continue
		}
		s.seenUDNs[device.UDN] = struct{}{}
		fresh = append(fresh, device)
	}
	s.knownMu.Unlock()

	if s.history == nil {
		return
	}

	for _, device := range fresh {
		payload := map[string]any{
			"ip":  device.IP,
			"udn": device.UDN,
		}
		if device.Name != "" {
			payload["name"] = device.Name
		}
		if device.Model != "" {
			payload["model"] = device.Model
		}

		input := history.WriteEventInput{
			Type:    string(history.EventDeviceDiscovered),
			Message: "HEOS device discovered",
			Payload: payload,
		}
		if _, err := s.history.RecordEvent(input); err != nil {
			s.logger.Printf("Failed to record discovery event: %v", err)
		}
	}
}

func hostFromLocation(location string) string {
	if location == "" {
		return ""
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Hostname())
}
