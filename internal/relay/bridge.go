package relay

import (
	"fmt"
	"log"

	"github.com/npezzotti/go-meetrelay/internal/broker"
	"github.com/npezzotti/go-meetrelay/internal/stats"
)

// topicPrefix namespaces channel topics on the fabric.
const topicPrefix = "meeting."

// TopicFor derives the broker topic for a channel name. The mapping is
// deterministic and unique per channel.
func TopicFor(channelName string) string {
	return topicPrefix + channelName
}

// BrokerBridge keeps each connection's fabric subscription in step with
// its channel membership: one live subscription per joined connection,
// consumed by one forwarding goroutine that copies payloads verbatim to
// the connection's transport. Forwarding is fire-and-forget: payloads
// for a closed or congested transport are dropped, never queued or
// replayed.
type BrokerBridge struct {
	bus   broker.PubSub
	log   *log.Logger
	stats stats.StatsProvider
}

func NewBrokerBridge(bus broker.PubSub, logger *log.Logger, sp stats.StatsProvider) *BrokerBridge {
	return &BrokerBridge{
		bus:   bus,
		log:   logger,
		stats: sp,
	}
}

// Subscribe acquires one subscription on the channel's topic for c and
// starts its forwarding goroutine. The caller must have released any
// previous subscription held by c.
func (b *BrokerBridge) Subscribe(channelName string, c *Client) error {
	sub, err := b.bus.Subscribe(TopicFor(channelName))
	if err != nil {
		return fmt.Errorf("subscribe to channel %q: %w", channelName, err)
	}

	done := make(chan struct{})
	c.sub = sub
	c.forwardDone = done

	go b.forward(c, sub, done)

	return nil
}

func (b *BrokerBridge) forward(c *Client, sub broker.Subscription, done chan struct{}) {
	defer b.log.Printf("client %s: forwarder exiting", c.sessionId)

	for {
		select {
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}

			if c.queuePayload(payload) {
				b.stats.Incr(stats.EventsForwarded)
			} else {
				b.stats.Incr(stats.DroppedPayloads)
			}
		case <-done:
			return
		}
	}
}

// Unsubscribe stops c's forwarding goroutine and releases its
// subscription. Safe to call when c holds none, and must always be
// called before c is discarded.
func (b *BrokerBridge) Unsubscribe(c *Client) {
	if c.sub == nil {
		return
	}

	close(c.forwardDone)
	if err := c.sub.Unsubscribe(); err != nil {
		b.log.Printf("client %s: unsubscribe: %v", c.sessionId, err)
	}

	c.sub = nil
	c.forwardDone = nil
}
