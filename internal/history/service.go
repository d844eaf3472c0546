package history

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strefethen/heos-hub-go/internal/config"
)

const (
	DefaultRetentionDays   = 30
	DefaultPruneInterval   = 24 * time.Hour
	DefaultQueryLimit      = 100
	MaxQueryLimit          = 1000
	MaxConsecutiveFailures = 3
)

// Service wraps the repository with limit clamping, a retention prune loop,
// and a health signal derived from repeated storage failures.
type Service struct {
	logger        *log.Logger
	repo          *Repository
	retentionDays int
	pruneInterval time.Duration
	stopCh        chan struct{}
	wg            sync.WaitGroup

	healthMu sync.RWMutex
	failures int
	healthy  bool
}

func NewService(cfg config.Config, dbPair DBPair, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	retentionDays := cfg.HistoryRetentionDays
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Service{
		logger:        logger,
		repo:          NewRepository(dbPair),
		retentionDays: retentionDays,
		pruneInterval: DefaultPruneInterval,
		stopCh:        make(chan struct{}),
		healthy:       true,
	}
}

// RecordEvent writes one event, defaulting the level to INFO.
func (s *Service) RecordEvent(input WriteEventInput) (*HistoryEvent, error) {
	if input.Level == nil {
		level := EventLevelInfo
		input.Level = &level
	}

	event, err := s.repo.InsertEvent(input)
	s.noteResult(err)
	if err != nil {
		return nil, fmt.Errorf("record history event: %w", err)
	}
	return event, nil
}

// QueryEvents retrieves events with filters and pagination. Oversized limits
// are clamped to MaxQueryLimit rather than rejected.
func (s *Service) QueryEvents(filters EventQueryFilters) ([]HistoryEvent, int, bool, error) {
	if filters.Limit == 0 {
		filters.Limit = DefaultQueryLimit
	}
	if filters.Limit > MaxQueryLimit {
		filters.Limit = MaxQueryLimit
	}

	events, total, err := s.repo.QueryEvents(filters)
	s.noteResult(err)
	if err != nil {
		return nil, 0, false, fmt.Errorf("query history events: %w", err)
	}

	hasMore := filters.Offset+len(events) < total
	return events, total, hasMore, nil
}

// GetEvent retrieves a single event by id.
func (s *Service) GetEvent(eventID string) (*HistoryEvent, error) {
	event, err := s.repo.GetEvent(eventID)
	s.noteResult(err)
	if err != nil {
		return nil, fmt.Errorf("get history event: %w", err)
	}
	if event == nil {
		return nil, &EventNotFoundError{EventID: eventID}
	}
	return event, nil
}

// StartPruneJob prunes once immediately, then on every interval tick.
func (s *Service) StartPruneJob() {
	s.logger.Printf("Starting history prune job (interval: %v, retention: %d days)",
		s.pruneInterval, s.retentionDays)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.pruneOnce()

		ticker := time.NewTicker(s.pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.pruneOnce()
			}
		}
	}()
}

// StopPruneJob stops the loop and waits for it to exit.
func (s *Service) StopPruneJob() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Printf("History prune job stopped")
}

func (s *Service) pruneOnce() {
	count, err := s.Prune()
	switch {
	case err != nil:
		s.logger.Printf("History prune failed: %v", err)
	case count > 0:
		s.logger.Printf("History prune removed %d events", count)
	}
}

// Prune deletes events past the retention window, returning the count.
func (s *Service) Prune() (int64, error) {
	count, err := s.repo.PruneOldEvents(s.retentionDays)
	s.noteResult(err)
	if err != nil {
		return 0, fmt.Errorf("prune history events: %w", err)
	}
	return count, nil
}

// IsHealthy reports whether recent storage operations are succeeding.
func (s *Service) IsHealthy() bool {
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()
	return s.healthy
}

// noteResult tracks consecutive repository failures. A run of them marks the
// service unhealthy; any success resets it.
func (s *Service) noteResult(err error) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	if err == nil {
		s.failures = 0
		s.healthy = true
		return
	}
	s.failures++
	if s.failures >= MaxConsecutiveFailures {
		s.healthy = false
	}
}

// EventNotFoundError is returned when a history event does not exist.
type EventNotFoundError struct {
	EventID string
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("history event not found: %s", e.EventID)
}
