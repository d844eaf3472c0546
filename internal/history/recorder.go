package history

import (
	"log"
	"sync"

	"github.com/strefethen/heos-hub-go/internal/heos"
)

// EventSource is the slice of the HEOS client the recorder needs.
type EventSource interface {
	Subscribe(types ...heos.EventType) *heos.Subscription
}

// Recorder subscribes to the HEOS client and persists structural, session
// and account changes as history rows. Per-track noise (volume ticks,
// progress) is deliberately not recorded.
type Recorder struct {
	service *Service
	source  EventSource
	logger  *log.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder bound to a history service and event source.
func NewRecorder(service *Service, source EventSource, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{
		service: service,
		source:  source,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}
}

// Start begins consuming events until Stop is called.
func (r *Recorder) Start() {
	sub := r.source.Subscribe(
		heos.EventPlayersChanged,
		heos.EventGroupsChanged,
		heos.EventPlayerAdded,
		heos.EventPlayerRemoved,
		heos.EventSessionChanged,
		heos.EventUserChanged,
		heos.EventSystemError,
	)

	r.wg.Add(1)
	go r.loop(sub)
}

// Stop halts the recorder and waits for the consumer goroutine to exit.
func (r *Recorder) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Recorder) loop(sub *heos.Subscription) {
	defer r.wg.Done()
	defer sub.Close()

	for {
		select {
		case <-r.stopCh:
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			if input, record := translate(ev); record {
				if _, err := r.service.RecordEvent(input); err != nil {
					r.logger.Printf("history recorder: %v", err)
				}
			}
		}
	}
}

// translate maps a HEOS event onto a history row. Session transitions other
// than ready/disconnected are skipped to keep the log readable.
func translate(ev heos.Event) (WriteEventInput, bool) {
	switch ev.Type {
	case heos.EventPlayersChanged:
		return WriteEventInput{
			Type:    string(EventPlayersChanged),
			Message: "Player set changed",
		}, true

	case heos.EventGroupsChanged:
		return WriteEventInput{
			Type:    string(EventGroupsChanged),
			Message: "Group layout changed",
		}, true

	case heos.EventPlayerAdded:
		pid := int(ev.PlayerID)
		return WriteEventInput{
			Type:     string(EventPlayerAdded),
			PlayerID: &pid,
			Message:  "Player appeared",
		}, true

	case heos.EventPlayerRemoved:
		pid := int(ev.PlayerID)
		level := EventLevelWarn
		return WriteEventInput{
			Type:     string(EventPlayerRemoved),
			Level:    &level,
			PlayerID: &pid,
			Message:  "Player vanished",
		}, true

	case heos.EventSessionChanged:
		switch ev.SessionState {
		case heos.StateReady:
			return WriteEventInput{
				Type:    string(EventSessionConnected),
				Message: "HEOS session established",
			}, true
		case heos.StateDisconnected, heos.StateDegraded:
			level := EventLevelWarn
			return WriteEventInput{
				Type:    string(EventSessionLost),
				Level:   &level,
				Message: "HEOS session lost",
				Payload: map[string]any{"state": string(ev.SessionState)},
			}, true
		}
		return WriteEventInput{}, false

	case heos.EventUserChanged:
		message := "Signed out of HEOS account"
		payload := map[string]any{"signed_in": ev.SignedIn}
		if ev.SignedIn {
			message = "Signed in to HEOS account"
			payload["username"] = ev.Username
		}
		return WriteEventInput{
			Type:    string(EventAccountChanged),
			Message: message,
			Payload: payload,
		}, true

	case heos.EventSystemError:
		level := EventLevelError
		return WriteEventInput{
			Type:    string(EventSystemError),
			Level:   &level,
			Message: ev.Message,
		}, true
	}

	return WriteEventInput{}, false
}
