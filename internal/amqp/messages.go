package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"travelai/internal/core"
)

// Event types carried on the exchange.
const (
	EventExpenditureSaved     = "expenditure.saved"
	EventExpenditureDeleted   = "expenditure.deleted"
	EventMemberJoined         = "member.joined"
	EventMemberLeft           = "member.left"
	EventSettlementRecomputed = "settlement.recomputed"
)

// Routing keys. Session edits from upstream producers and recompute
// notifications travel on separate keys so each consumer binds only what
// it handles.
const (
	SessionEventsKey = "session.events"
	RecomputedKey    = "settlement.recomputed"
)

var ErrUnknownEventType = errors.New("unknown event type")

// SettlementEvent is the envelope for every message. Only the payload field
// matching Type is set.
type SettlementEvent struct {
	ID            string                      `json:"id"`
	Type          string                      `json:"type"`
	SessionID     string                      `json:"session_id"`
	Timestamp     time.Time                   `json:"timestamp"`
	Expenditure   *core.Expenditure           `json:"expenditure,omitempty"`
	Participant   *core.Participant           `json:"participant,omitempty"`
	ExpenditureID string                      `json:"expenditure_id,omitempty"`
	UserID        string                      `json:"user_id,omitempty"`
	Distribution  map[string]core.ExactAmount `json:"distribution,omitempty"`
	Summary       *core.SessionSummary        `json:"summary,omitempty"`
}

func NewEvent(eventType, sessionID string) *SettlementEvent {
	return &SettlementEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey is the key the event is published under.
func (m *SettlementEvent) RoutingKey() string {
	if m.Type == EventSettlementRecomputed {
		return RecomputedKey
	}
	return SessionEventsKey
}

func (m *SettlementEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EventFromJSON decodes and sanity-checks an event.
func EventFromJSON(data []byte) (*SettlementEvent, error) {
	var msg SettlementEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.SessionID) == "" {
		return nil, fmt.Errorf("event %q has no session id", msg.ID)
	}
	switch msg.Type {
	case EventExpenditureSaved, EventExpenditureDeleted, EventMemberJoined, EventMemberLeft, EventSettlementRecomputed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, msg.Type)
	}
	return &msg, nil
}
