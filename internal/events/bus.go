// Package events fans chain progress events out to per-session subscribers
// over an in-process watermill pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/sasaki2110/Morizo-aiv2-sub000/internal/chain"
)

// DefaultBufferSize is the per-subscriber buffer.
const DefaultBufferSize = 64

// Topic returns the topic carrying a session's events.
func Topic(sessionID string) string {
	return "morizo.session." + sessionID
}

// Bus publishes chain events to a topic per session. It implements
// chain.Observer. Subscribers that fall behind lose events rather than
// slow the publisher down.
type Bus struct {
	pubSub     *gochannel.GoChannel
	bufferSize int
	dropped    atomic.Int64
}

// NewBus creates a bus. A bufferSize <= 0 uses DefaultBufferSize.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            int64(bufferSize),
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
	return &Bus{pubSub: pubSub, bufferSize: bufferSize}
}

// OnChainEvent publishes e on its session topic.
func (b *Bus) OnChainEvent(e chain.Event) {
	if err := b.Publish(e); err != nil {
		log.Printf("[events] publish %s for session %s: %v", e.Type, e.SessionID, err)
	}
}

// Publish encodes and publishes e.
func (b *Bus) Publish(e chain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(e.Type))
	msg.Metadata.Set("chain_id", e.ChainID)
	if err := b.pubSub.Publish(Topic(e.SessionID), msg); err != nil {
		return fmt.Errorf("watermill publish failed: %w", err)
	}
	return nil
}

// Subscribe streams a session's events until ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (<-chan chain.Event, error) {
	messages, err := b.pubSub.Subscribe(ctx, Topic(sessionID))
	if err != nil {
		return nil, fmt.Errorf("watermill subscribe failed: %w", err)
	}

	out := make(chan chain.Event, b.bufferSize)
	go func() {
		defer close(out)
		for msg := range messages {
			var e chain.Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				log.Printf("[events] dropping undecodable message %s: %v", msg.UUID, err)
				msg.Ack()
				continue
			}
			select {
			case out <- e:
			default:
				b.dropped.Add(1)
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// DroppedCount returns how many events slow subscribers missed.
func (b *Bus) DroppedCount() int64 {
	return b.dropped.Load()
}

// Close shuts the bus down and ends every subscription.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}
