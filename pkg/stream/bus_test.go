package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/whiteroom-io/whiteroom/pkg/room"
)

func TestSinkPublishesToRoomTopic(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.pubsub.Subscribe(ctx, TopicForRoom("r1"))
	require.NoError(t, err)

	sink := bus.SinkFor("r1")
	require.NoError(t, sink.Publish(room.Event{
		Type:   room.EventCommandExecuted,
		RoomID: "r1",
		AtMs:   42,
	}))

	select {
	case msg := <-ch:
		var e room.Event
		require.NoError(t, json.Unmarshal(msg.Payload, &e))
		require.Equal(t, room.EventCommandExecuted, e.Type)
		require.Equal(t, "r1", e.RoomID)
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestTopicsAreIsolatedPerRoom(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	defer func() { _ = bus.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other, err := bus.pubsub.Subscribe(ctx, TopicForRoom("other"))
	require.NoError(t, err)

	require.NoError(t, bus.SinkFor("r1").Publish(room.Event{Type: room.EventSnapshotCommitted, RoomID: "r1"}))

	select {
	case msg := <-other:
		t.Fatalf("unexpected delivery on other topic: %s", msg.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}
