package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope for every message on the bus. Username addresses a
// single racer; empty means everyone. Delivery is best-effort and unordered
// relative to other subscribers; nothing is acknowledged or persisted for
// the recipient.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Username  string          `json:"username,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType represents the kind of bus event.
type EventType string

const (
	EventTypeOnline         EventType = "Online"
	EventTypeOffline        EventType = "Offline"
	EventTypeFriendRequest  EventType = "FriendRequest"
	EventTypeFriendAccepted EventType = "FriendAccepted"
	EventTypeRaceInvite     EventType = "RaceInvite"
	EventTypeIgnitionStep   EventType = "IgnitionStep"
	EventTypeSectorStarted  EventType = "SectorStarted"
	EventTypeTimerTick      EventType = "TimerTick"
	EventTypeSectorDone     EventType = "SectorDone"
)

// PresencePayload announces a racer going online or offline.
type PresencePayload struct {
	Username string `json:"username"`
}

// FriendRequestPayload carries a pending friend request.
type FriendRequestPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FriendAcceptedPayload confirms a symmetric friendship edge.
type FriendAcceptedPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RaceInvitePayload invites another racer to a shared sector.
type RaceInvitePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// IgnitionStepPayload is one light of the pre-sector ignition sequence.
type IgnitionStepPayload struct {
	Sector int `json:"sector"`
	Step   int `json:"step"`
}

// SectorStartedPayload marks the sector going green.
type SectorStartedPayload struct {
	Sector    int       `json:"sector"`
	StartedAt time.Time `json:"started_at"`
}

// TimerTickPayload carries the once-per-second countdown refresh.
type TimerTickPayload struct {
	Sector           int       `json:"sector"`
	TimeRemainingSec int       `json:"time_remaining_sec"`
	TickedAt         time.Time `json:"ticked_at"`
}

// SectorDonePayload marks the countdown stopping, either at zero or early
// because every task finished.
type SectorDonePayload struct {
	Sector int  `json:"sector"`
	Early  bool `json:"early"`
}

// NewEvent builds an addressed event with a marshalled payload.
func NewEvent(eventType EventType, username string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Username:  username,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// ParseEventPayload parses event data into the matching payload struct.
func ParseEventPayload(event Event) (any, error) {
	switch event.Type {
	case EventTypeOnline, EventTypeOffline:
		var payload PresencePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeFriendRequest:
		var payload FriendRequestPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeFriendAccepted:
		var payload FriendAcceptedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeRaceInvite:
		var payload RaceInvitePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeIgnitionStep:
		var payload IgnitionStepPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSectorStarted:
		var payload SectorStartedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeTimerTick:
		var payload TimerTickPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeSectorDone:
		var payload SectorDonePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
