package broker

import (
	"errors"
	"sync"
)

// MemoryPubSub is an in-process fabric for tests and single-node
// deployments. It provides the same per-topic ordering as the NATS
// implementation: payloads are handed to subscribers under the bus lock,
// in publish order.
type MemoryPubSub struct {
	mu     sync.Mutex
	topics map[string][]*memorySubscription
	closed bool
}

func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{
		topics: make(map[string][]*memorySubscription),
	}
}

func (p *MemoryPubSub) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("pubsub is closed")
	}

	for _, sub := range p.topics[topic] {
		select {
		case sub.msgs <- payload:
		default:
			// subscriber buffer full, drop
		}
	}

	return nil
}

func (p *MemoryPubSub) Subscribe(topic string) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, errors.New("pubsub is closed")
	}

	sub := &memorySubscription{
		bus:   p,
		topic: topic,
		msgs:  make(chan []byte, subscriptionBuffer),
	}
	p.topics[topic] = append(p.topics[topic], sub)

	return sub, nil
}

func (p *MemoryPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for _, subs := range p.topics {
		for _, sub := range subs {
			close(sub.msgs)
		}
	}
	p.topics = make(map[string][]*memorySubscription)

	return nil
}

func (p *MemoryPubSub) remove(sub *memorySubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	subs := p.topics[sub.topic]
	for i, s := range subs {
		if s == sub {
			p.topics[sub.topic] = append(subs[:i], subs[i+1:]...)
			close(sub.msgs)
			break
		}
	}

	if len(p.topics[sub.topic]) == 0 {
		delete(p.topics, sub.topic)
	}
}

type memorySubscription struct {
	bus   *MemoryPubSub
	topic string
	msgs  chan []byte
	once  sync.Once
}

func (s *memorySubscription) Messages() <-chan []byte {
	return s.msgs
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.remove(s)
	})
	return nil
}
