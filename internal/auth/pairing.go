package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const codeRetryLimit = 10

type pairingEntry struct {
	requestID string
	expiresAt time.Time
}

// PairingStore holds pairing codes waiting to be claimed. Codes are single
// use and expire after the configured TTL.
type PairingStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	codes map[string]pairingEntry
}

func NewPairingStore(ttl time.Duration) *PairingStore {
	return &PairingStore{ttl: ttl, codes: make(map[string]pairingEntry)}
}

// Create issues a fresh six digit code tied to the originating request.
func (s *PairingStore) Create(requestID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < codeRetryLimit; attempt++ {
		code, err := randomPairingCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; taken {
			continue
		}
		s.codes[code] = pairingEntry{
			requestID: requestID,
			expiresAt: time.Now().Add(s.ttl),
		}
		return code, nil
	}
	return "", errors.New("unable to generate unique pairing code")
}

// Lookup reports whether a code exists and whether it already expired.
// Expired entries stay visible until cleanup so callers can tell an expired
// code apart from an unknown one.
func (s *PairingStore) Lookup(code string) (pairingEntry, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.codes[code]
	if !ok {
		return pairingEntry{}, false, false
	}
	return entry, true, time.Now().After(entry.expiresAt)
}

// Consume removes a code once it has been claimed or burned.
func (s *PairingStore) Consume(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, code)
}

// CleanupExpired drops every entry past its expiry.
func (s *PairingStore) CleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for code, entry := range s.codes {
		if now.After(entry.expiresAt) {
			delete(s.codes, code)
		}
	}
}

// Clear drops all entries.
func (s *PairingStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = make(map[string]pairingEntry)
}

// StartCleanup prunes expired codes on an interval until ctx is canceled.
func (s *PairingStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.Clear()
				return
			case <-ticker.C:
				s.CleanupExpired()
			}
		}
	}()
}

// randomPairingCode draws uniformly from 100000..999999.
func randomPairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
