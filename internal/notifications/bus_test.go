package notifications

import (
	"context"
	"testing"
)

func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	for _, id := range []string{"1", "2", "3"} {
		if err := bus.Publish(context.Background(), EventTaskClaimed, Payload{"task_id": id}); err != nil {
			t.Fatal(err)
		}
	}

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
	if bus.LastSeq() != 3 {
		t.Fatalf("last seq = %d", bus.LastSeq())
	}
}

func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Append(EventTest, Payload{"n": 1})
	bus.Append(EventTest, Payload{"n": 2})
	bus.Append(EventTest, Payload{"n": 3})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Payload.num("n") != 2 || events[1].Payload.num("n") != 3 {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestEventBusCopiesPayload(t *testing.T) {
	bus := NewEventBus(5)
	payload := Payload{"task_id": "a"}
	bus.Append(EventTaskClaimed, payload)
	payload["task_id"] = "b"

	if got := bus.Since(0)[0].Payload.str("task_id"); got != "a" {
		t.Fatalf("payload mutated through bus: %q", got)
	}
}
