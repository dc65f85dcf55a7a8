package account

import (
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies a state transition emitted by an Account.
type EventType string

const (
	EventInitialized             EventType = "account/initialized"
	EventOwnersUpdated           EventType = "owners/updated"
	EventOwnerAdded              EventType = "owners/added"
	EventOwnerRemoved            EventType = "owners/removed"
	EventGuardiansUpdated        EventType = "guardians/updated"
	EventGuardianAdded           EventType = "guardians/added"
	EventGuardianRemoved         EventType = "guardians/removed"
	EventRecoveryApproved        EventType = "recovery/approved"
	EventRecoveryApprovalRevoked EventType = "recovery/approval-revoked"
	EventRecoveryExecuted        EventType = "recovery/executed"
)

// Event is a notification of a successful account state transition.
// Fields carry event-specific details as strings so sinks can encode
// them without knowing every event shape.
type Event struct {
	Type      EventType         `json:"type"`
	Account   common.Address    `json:"account"`
	Timestamp time.Time         `json:"timestamp"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// EventSink receives account events. Emit is called synchronously from
// within the mutating operation; sinks must not call back into the Account.
type EventSink interface {
	Emit(Event)
}

// SlogSink logs events through slog. It is the default sink.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 2+2*len(e.Fields))
	attrs = append(attrs, "account", e.Account.Hex())
	for k, v := range e.Fields {
		attrs = append(attrs, k, v)
	}
	logger.Info(string(e.Type), attrs...)
}

type nopSink struct{}

func (nopSink) Emit(Event) {}

// NopSink discards all events.
var NopSink EventSink = nopSink{}

func (a *Account) emit(t EventType, fields map[string]string) {
	a.sink.Emit(Event{
		Type:      t,
		Account:   a.address,
		Timestamp: time.Now().UTC(),
		Fields:    fields,
	})
}
