package pushevents

import (
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func makeEvent(t *testing.T, invoiceID snowflake.ID, name string) Event {
	t.Helper()
	event, err := NewEvent(name, invoiceID, map[string]any{"payment_id": snowflake.ID(7)})
	require.NoError(t, err)
	return event
}

func TestPublishReachesEverySubscriber(t *testing.T) {
	hub := NewHub()
	invoiceID := snowflake.ID(10)

	first, _, err := hub.Subscribe(invoiceID)
	require.NoError(t, err)
	defer first.Close()

	second, _, err := hub.Subscribe(invoiceID)
	require.NoError(t, err)
	defer second.Close()

	event := makeEvent(t, invoiceID, EventPaymentAdded)
	hub.Publish(event)

	for _, sub := range []*Subscription{first, second} {
		select {
		case got := <-sub.Events():
			require.Equal(t, event.ID, got.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestSubscribeReplaysBoundedBacklog(t *testing.T) {
	hub := NewHub()
	invoiceID := snowflake.ID(11)

	// Publishing with no subscribers drops the event instead of buffering
	// for streams nobody has opened.
	hub.Publish(makeEvent(t, invoiceID, EventPaymentAdded))
	sub, backlog, err := hub.Subscribe(invoiceID)
	require.NoError(t, err)
	defer sub.Close()
	require.Empty(t, backlog)

	for i := 0; i < DefaultBufferSize+10; i++ {
		event, err := NewEvent(EventPaymentUpdated, invoiceID, map[string]int{"n": i})
		require.NoError(t, err)
		hub.Publish(event)
	}

	late, backlog, err := hub.Subscribe(invoiceID)
	require.NoError(t, err)
	defer late.Close()
	require.Len(t, backlog, DefaultBufferSize)
	require.JSONEq(t, `{"n":`+strconv.Itoa(10)+`}`, string(backlog[0].Payload))
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	invoiceID := snowflake.ID(12)

	sub, _, err := hub.Subscribe(invoiceID)
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultSubscriberBuffer*3; i++ {
			hub.Publish(makeEvent(t, invoiceID, EventInvoiceUpdated))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
}

func TestCloseIsIdempotentAndPrunesStream(t *testing.T) {
	hub := NewHub()
	invoiceID := snowflake.ID(13)

	sub, _, err := hub.Subscribe(invoiceID)
	require.NoError(t, err)
	sub.Close()
	sub.Close()

	hub.mu.RLock()
	_, exists := hub.streams[invoiceID]
	hub.mu.RUnlock()
	require.False(t, exists)
}

func TestSubscribeRejectsZeroInvoiceID(t *testing.T) {
	hub := NewHub()
	_, _, err := hub.Subscribe(0)
	require.Error(t, err)
}
