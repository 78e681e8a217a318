package broadcast

import (
	"testing"
	"time"
)

func TestPublishDeliversInOrder(t *testing.T) {
	b := New(8, nil)
	ch := b.Register("observer-1")
	defer b.Unregister("observer-1")

	b.Publish(JogStop(time.Unix(1, 0)))
	b.Publish(EmergencyStop(time.Unix(2, 0)))

	first := <-ch
	second := <-ch

	if first.Type != TypeJogStop || second.Type != TypeEmergencyStop {
		t.Fatalf("got order %s, %s; want jog_stop, emergency_stop", first.Type, second.Type)
	}
}

func TestSlowSubscriberIsDroppedNotBlocking(t *testing.T) {
	dropped := make(chan string, 1)
	b := New(1, nil)
	b.OnDrop(func(id string) { dropped <- id })

	b.Register("slow")

	// Fill the queue, then overflow it; Publish must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(JogStop(time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled subscriber")
	}

	select {
	case id := <-dropped:
		if id != "slow" {
			t.Fatalf("dropped id = %v, want slow", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected slow subscriber to be dropped")
	}
}

func TestOtherObserversUnaffectedBySkippedOne(t *testing.T) {
	b := New(1, nil)
	b.Register("slow") // never drained
	fast := b.Register("fast")
	defer b.Unregister("fast")

	b.Publish(JogStop(time.Now()))

	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber did not receive event")
	}

	// The slow subscriber's queue is still full, so this publish drops it.
	b.Publish(EmergencyStop(time.Now()))

	select {
	case ev := <-fast:
		if ev.Type != TypeEmergencyStop {
			t.Fatalf("fast subscriber got %s, want emergency_stop", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("fast subscriber did not receive event after the slow one was dropped")
	}
}
