package relay

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-meetrelay/internal/broker"
	"github.com/npezzotti/go-meetrelay/internal/database"
	"github.com/npezzotti/go-meetrelay/internal/stats"
)

const defaultHistoryLimit = 50

// RelayServer owns the connection set, the channel registry and the
// broker bridge, and dispatches inbound actions. One instance exists
// per process, created at startup and drained at shutdown.
type RelayServer struct {
	log          *log.Logger
	db           database.RelayRepository
	bus          broker.PubSub
	registry     *ChannelRegistry
	bridge       *BrokerBridge
	stats        stats.StatsProvider
	historyLimit int

	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	clientsWG   sync.WaitGroup
}

func NewRelayServer(logger *log.Logger, db database.RelayRepository, bus broker.PubSub, sp stats.StatsProvider, historyLimit int) (*RelayServer, error) {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	sp.RegisterMetric(stats.ActiveConnections)
	sp.RegisterMetric(stats.ActiveChannels)
	sp.RegisterMetric(stats.MessagesRelayed)
	sp.RegisterMetric(stats.EventsForwarded)
	sp.RegisterMetric(stats.DroppedPayloads)

	rs := &RelayServer{
		log:          logger,
		db:           db,
		bus:          bus,
		registry:     NewChannelRegistry(),
		stats:        sp,
		historyLimit: historyLimit,
		clients:      make(map[*Client]struct{}),
	}
	rs.bridge = NewBrokerBridge(bus, logger, sp)

	return rs, nil
}

func (rs *RelayServer) RegisterClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	rs.clients[c] = struct{}{}
	rs.clientsWG.Add(1)
	rs.stats.Incr(stats.ActiveConnections)
}

func (rs *RelayServer) deregisterClient(c *Client) {
	rs.clientsLock.Lock()
	defer rs.clientsLock.Unlock()

	if _, ok := rs.clients[c]; !ok {
		return
	}

	delete(rs.clients, c)
	rs.clientsWG.Done()
	rs.stats.Decr(stats.ActiveConnections)
}

// releaseChannel removes c from its channel's membership and releases
// its subscription, in that order. Idempotent: a connection that never
// joined passes through untouched.
func (rs *RelayServer) releaseChannel(c *Client) {
	if c.channelName != "" {
		if rs.registry.Leave(c.channelName, c) {
			rs.stats.Decr(stats.ActiveChannels)
		}
		c.channelName = ""
	}

	rs.bridge.Unsubscribe(c)
}

// Shutdown stops every connection and waits for their teardown to
// finish or the context to expire.
func (rs *RelayServer) Shutdown(ctx context.Context) error {
	rs.clientsLock.Lock()
	for c := range rs.clients {
		c.stopClient()
	}
	rs.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		rs.clientsWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
