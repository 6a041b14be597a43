// Package stream fans room events (agent command results, snapshot commits)
// out to websocket clients through a watermill pub/sub. One topic per room.
package stream

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/whiteroom-io/whiteroom/pkg/room"
)

// Bus is an in-process event bus. Rooms publish; per-room forwarders
// subscribe and relay events to connected clients as JSON text frames.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger
}

func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, newWatermillLogger(logger)),
		logger: logger,
	}
}

func TopicForRoom(roomID string) string { return "room:" + roomID }

// SinkFor returns the event sink rooms publish through.
func (b *Bus) SinkFor(roomID string) room.EventSink {
	return &busSink{bus: b, topic: TopicForRoom(roomID)}
}

type busSink struct {
	bus   *Bus
	topic string
}

func (s *busSink) Publish(e room.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "stream: marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return s.bus.pubsub.Publish(s.topic, msg)
}

// StartForwarder subscribes to the room's topic and relays every event to
// the room's connections until ctx is done.
func (b *Bus) StartForwarder(ctx context.Context, r *room.Room) error {
	ch, err := b.pubsub.Subscribe(ctx, TopicForRoom(r.ID))
	if err != nil {
		return errors.Wrap(err, "stream: subscribe")
	}
	logger := b.logger.With().Str("room_id", r.ID).Logger()
	logger.Debug().Msg("starting room event forwarder")
	go func() {
		for msg := range ch {
			r.BroadcastText(msg.Payload)
			msg.Ack()
		}
		logger.Debug().Msg("room event forwarder stopped")
	}()
	return nil
}

func (b *Bus) Close() error {
	return b.pubsub.Close()
}
