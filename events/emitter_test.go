package events_test

import (
	"testing"

	"github.com/nornlabs/norn/events"
)

func TestEmitDeliversToSubscribers(t *testing.T) {
	e := events.NewEmitter()
	var got events.Event
	e.Subscribe(events.EventBlockFinalized, func(ev events.Event) { got = ev })

	e.Emit(events.Event{Type: events.EventBlockFinalized, Height: 7, Data: map[string]any{"proposer": "abc"}})

	if got.Type != events.EventBlockFinalized || got.Height != 7 {
		t.Fatalf("handler did not receive the expected event, got %+v", got)
	}
}

func TestEmitIgnoresUnrelatedEventTypes(t *testing.T) {
	e := events.NewEmitter()
	called := false
	e.Subscribe(events.EventFraudAccepted, func(ev events.Event) { called = true })

	e.Emit(events.Event{Type: events.EventKnotAppended, Height: 1})

	if called {
		t.Fatalf("handler for a different event type should not be invoked")
	}
}

func TestEmitRecoversFromPanickingHandler(t *testing.T) {
	e := events.NewEmitter()
	e.Subscribe(events.EventValidatorSlashed, func(ev events.Event) { panic("boom") })

	secondCalled := false
	e.Subscribe(events.EventValidatorSlashed, func(ev events.Event) { secondCalled = true })

	e.Emit(events.Event{Type: events.EventValidatorSlashed, Height: 3})

	if !secondCalled {
		t.Fatalf("a panicking handler must not prevent later subscribers from running")
	}
}
