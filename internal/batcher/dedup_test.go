package batcher

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestDedupGateAdmit(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	gate := NewDedupGate(clock, 60*time.Second, 0)

	if !gate.Admit(5, 99) {
		t.Fatal("first delivery should be admitted")
	}
	if gate.Admit(5, 99) {
		t.Fatal("redelivery within the window should be dropped")
	}
	if !gate.Admit(6, 99) {
		t.Error("same message id in another chat should be admitted")
	}
	if !gate.Admit(5, 100) {
		t.Error("different message id in the same chat should be admitted")
	}

	clock.Advance(59 * time.Second)
	if gate.Admit(5, 99) {
		t.Error("redelivery at 59s should still be dropped")
	}

	clock.Advance(time.Second)
	if !gate.Admit(5, 99) {
		t.Error("redelivery after 60s should be treated as new")
	}
	if gate.Admit(5, 99) {
		t.Error("re-admitted message should be deduplicated again")
	}
}

func TestDedupGateSweep(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	gate := NewDedupGate(clock, time.Minute, 0)

	gate.Admit(1, 1)
	gate.Admit(1, 2)
	clock.Advance(30 * time.Second)
	gate.Admit(1, 3)

	if got := gate.Sweep(); got != 0 {
		t.Errorf("Sweep() before expiry removed %d records, want 0", got)
	}

	clock.Advance(30 * time.Second)
	if got := gate.Sweep(); got != 2 {
		t.Errorf("Sweep() removed %d records, want 2", got)
	}
	if got := gate.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}

	clock.Advance(30 * time.Second)
	if got := gate.Sweep(); got != 1 {
		t.Errorf("Sweep() removed %d records, want 1", got)
	}
	if got := gate.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestDedupGateBounded(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	gate := NewDedupGate(clock, time.Minute, 3)

	for id := 1; id <= 4; id++ {
		if !gate.Admit(1, id) {
			t.Fatalf("message %d should be admitted", id)
		}
		clock.Advance(time.Second)
	}

	if got := gate.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	// Oldest record was evicted to make room.
	if !gate.Admit(1, 1) {
		t.Error("evicted message should be admitted again")
	}
	if gate.Admit(1, 4) {
		t.Error("newest message should still be deduplicated")
	}
}
