// Package broker wraps the pub/sub fabric the relay fans events out
// through. The fabric delivers payloads at least once and in publish
// order within a single topic; no ordering holds across topics.
package broker

// subscriptionBuffer is the per-subscription payload buffer. Delivery is
// best-effort: payloads beyond the buffer are dropped, never queued.
const subscriptionBuffer = 256

// Subscription is a live consumer registration on a single topic,
// yielding an ordered payload stream to exactly one consumer.
type Subscription interface {
	// Messages returns the payload stream. The channel is closed when
	// the subscription is released by the fabric.
	Messages() <-chan []byte
	// Unsubscribe releases the registration. Calling it more than once
	// is a no-op.
	Unsubscribe() error
}

type PubSub interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string) (Subscription, error)
	Close() error
}
