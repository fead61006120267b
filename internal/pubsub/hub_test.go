package pubsub

import (
	"context"
	"testing"

	"github.com/pathakanu/remindme/internal/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	h := NewHub(4)
	_, a := h.Subscribe()
	_, b := h.Subscribe()

	require.NoError(t, h.Send(context.Background(), notifier.Alert{Key: 1, Title: "t"}))

	assert.EqualValues(t, 1, (<-a).Key)
	assert.EqualValues(t, 1, (<-b).Key)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(1)
	id, ch := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	h.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, h.Subscribers())

	h.Unsubscribe(id)
}

func TestBroadcastSkipsFullSubscriber(t *testing.T) {
	h := NewHub(1)
	_, ch := h.Subscribe()

	h.Broadcast(notifier.Alert{Key: 1})
	h.Broadcast(notifier.Alert{Key: 2})

	assert.EqualValues(t, 1, (<-ch).Key)
	select {
	case a := <-ch:
		t.Fatalf("unexpected alert %+v", a)
	default:
	}
}
