package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	bus.Publish(&Event{Type: EventInspectionCreated, EntityID: "I1"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventInspectionCreated, ev.Type)
		assert.Equal(t, "I1", ev.EntityID)
		assert.False(t, ev.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSubscribeFiltersTypes(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe(EventCustomerCreated)
	defer bus.Unsubscribe(sub)

	bus.Publish(&Event{Type: EventInspectionCreated})
	bus.Publish(&Event{Type: EventCustomerCreated, EntityID: "C1"})

	select {
	case ev := <-sub:
		assert.Equal(t, EventCustomerCreated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for filtered event")
	}

	// The inspection event must not have been delivered
	select {
	case ev := <-sub:
		t.Fatalf("unexpected event: %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublisherFIFOOrder(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	const n = 20
	for i := 0; i < n; i++ {
		bus.Publish(&Event{Type: EventComponentUpdated, EntityID: string(rune('a' + i))})
	}

	for i := 0; i < n; i++ {
		select {
		case ev := <-sub:
			require.Equal(t, string(rune('a'+i)), ev.EntityID, "events must arrive in publish order")
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestDroppedCounter(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	defer bus.Unsubscribe(sub)

	// Never drain the subscriber; its buffer is 64
	for i := 0; i < 200; i++ {
		bus.Publish(&Event{Type: EventScaleOut})
	}

	// Wait for the distribution loop to work through the queue
	deadline := time.Now().Add(2 * time.Second)
	for bus.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Greater(t, bus.Dropped(), uint64(0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	bus.Start()
	defer bus.Stop()

	sub := bus.Subscribe()
	bus.Unsubscribe(sub)

	_, open := <-sub
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())
}
