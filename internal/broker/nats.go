package broker

import (
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

type NatsPubSub struct {
	conn *nats.Conn
	log  *log.Logger
}

func NewNatsPubSub(url string, logger *log.Logger) (*NatsPubSub, error) {
	conn, err := nats.Connect(url,
		nats.Name("go-meetrelay"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &NatsPubSub{conn: conn, log: logger}, nil
}

func (p *NatsPubSub) Publish(topic string, payload []byte) error {
	return p.conn.Publish(topic, payload)
}

func (p *NatsPubSub) Subscribe(topic string) (Subscription, error) {
	s := &natsSubscription{
		msgs: make(chan []byte, subscriptionBuffer),
	}

	sub, err := p.conn.Subscribe(topic, func(m *nats.Msg) {
		select {
		case s.msgs <- m.Data:
		default:
			p.log.Printf("dropping payload on %q: subscriber buffer full", topic)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %q: %w", topic, err)
	}

	s.sub = sub
	return s, nil
}

func (p *NatsPubSub) Close() error {
	return p.conn.Drain()
}

type natsSubscription struct {
	sub  *nats.Subscription
	msgs chan []byte
	once sync.Once
}

func (s *natsSubscription) Messages() <-chan []byte {
	return s.msgs
}

func (s *natsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
	})
	return err
}
