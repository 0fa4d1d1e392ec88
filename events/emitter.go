package events

import (
	"sync"

	"github.com/nornlabs/norn/log"
)

// EventType labels what happened.
type EventType string

const (
	EventKnotAppended       EventType = "knot_appended"
	EventCommitmentApplied  EventType = "commitment_applied"
	EventFraudAccepted      EventType = "fraud_accepted"
	EventLoomExecuted       EventType = "loom_executed"
	EventBlockFinalized     EventType = "block_finalized"
	EventValidatorBonded    EventType = "validator_bonded"
	EventValidatorSlashed   EventType = "validator_slashed"
	EventValidatorUnbonded  EventType = "validator_unbonded"
	EventValidatorWithdrawn EventType = "validator_withdrawn"
	EventViewChanged        EventType = "view_changed"
	EventNameRegistered     EventType = "name_registered"
	EventNameCleared        EventType = "name_cleared"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type   EventType      `json:"type"`
	Height uint64         `json:"height"`
	Data   map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt consensus.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	logger := log.For("events")
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorw("subscriber panicked", "event_type", ev.Type, "recover", r)
				}
			}()
			h(ev)
		}()
	}
}
