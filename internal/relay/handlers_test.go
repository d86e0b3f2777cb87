package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/npezzotti/go-meetrelay/internal/broker"
	"github.com/npezzotti/go-meetrelay/internal/database"
	"github.com/npezzotti/go-meetrelay/internal/stats"
	"github.com/npezzotti/go-meetrelay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// newTestRelayServer creates a RelayServer backed by a mock repository
// and an in-process fabric.
func newTestRelayServer(t *testing.T, db database.RelayRepository, bus broker.PubSub) *RelayServer {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Times(5)
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()

	rs, err := NewRelayServer(testutil.TestLogger(t), db, bus, su, 50)
	if err != nil {
		t.Fatalf("failed to create test RelayServer: %v", err)
	}
	return rs
}

func newTestClient(t *testing.T, rs *RelayServer) *Client {
	c := &Client{
		server:    rs,
		log:       testutil.TestLogger(t),
		sessionId: "test",
		send:      make(chan []byte, 16),
		stop:      make(chan struct{}),
	}
	rs.RegisterClient(c)
	return c
}

func joinChannel(t *testing.T, rs *RelayServer, c *Client, channelName, uid, username string) {
	t.Helper()

	rs.dispatch(c, &ControlMessage{
		Action:      ActionJoin,
		ChannelName: channelName,
		Uid:         uid,
		Username:    username,
	})

	event := recvEvent(t, c)
	require.Equal(t, EventJoined, event["action"], "expected join acknowledgment, got %v", event)
}

func recvEvent(t *testing.T, c *Client) map[string]any {
	t.Helper()

	select {
	case payload := <-c.send:
		var event map[string]any
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case payload := <-c.send:
		t.Fatalf("unexpected event: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleJoin(t *testing.T) {
	t.Run("acknowledges and registers", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)

		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, db, bus)
		c := newTestClient(t, rs)

		rs.dispatch(c, &ControlMessage{Action: ActionJoin, ChannelName: "room1", Uid: "u1", Username: "Alice"})

		event := recvEvent(t, c)
		assert.Equal(t, EventJoined, event["action"])
		assert.Equal(t, "room1", event["channelName"])

		assert.True(t, rs.registry.Contains("room1", c), "expected c in room1's member set")
		assert.NotNil(t, c.sub, "expected a live subscription")
		assert.Equal(t, "room1", c.channelName)
		assert.Equal(t, "u1", c.uid)
		assert.Equal(t, "Alice", c.username)
	})

	t.Run("requires channel name", func(t *testing.T) {
		rs := newTestRelayServer(t, &database.MockRelayRepository{}, broker.NewMemoryPubSub())
		c := newTestClient(t, rs)

		rs.dispatch(c, &ControlMessage{Action: ActionJoin})

		event := recvEvent(t, c)
		assert.Equal(t, EventError, event["action"])
		assert.Nil(t, c.sub)
	})

	t.Run("rejoining held channel is idempotent", func(t *testing.T) {
		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, &database.MockRelayRepository{}, bus)
		c := newTestClient(t, rs)

		joinChannel(t, rs, c, "room1", "u1", "Alice")
		sub := c.sub

		rs.dispatch(c, &ControlMessage{Action: ActionJoin, ChannelName: "room1", Uid: "u1"})
		event := recvEvent(t, c)
		assert.Equal(t, EventJoined, event["action"])
		assert.Same(t, sub, c.sub, "expected the existing subscription to be kept")
		assert.Equal(t, 1, rs.registry.MemberCount("room1"))
	})

	t.Run("joining a new channel releases the previous one", func(t *testing.T) {
		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, &database.MockRelayRepository{}, bus)
		c := newTestClient(t, rs)

		joinChannel(t, rs, c, "room1", "u1", "Alice")
		joinChannel(t, rs, c, "room2", "u1", "Alice")

		assert.False(t, rs.registry.Contains("room1", c), "expected membership in room1 to be released")
		assert.True(t, rs.registry.Contains("room2", c))
		assert.Equal(t, "room2", c.channelName)

		// events published to the old channel must no longer reach c
		require.NoError(t, bus.Publish(TopicFor("room1"), []byte("stale")))
		assertNoEvent(t, c)
	})

	t.Run("subscribe failure rolls back membership", func(t *testing.T) {
		bus := broker.NewMemoryPubSub()
		bus.Close()

		rs := newTestRelayServer(t, &database.MockRelayRepository{}, bus)
		c := newTestClient(t, rs)

		rs.dispatch(c, &ControlMessage{Action: ActionJoin, ChannelName: "room1", Uid: "u1"})

		event := recvEvent(t, c)
		assert.Equal(t, EventError, event["action"])
		assert.False(t, rs.registry.Contains("room1", c), "expected membership rolled back on subscribe failure")
		assert.Empty(t, c.channelName)
	})
}

func TestHandleSendMessage(t *testing.T) {
	t.Run("persists and fans out to all members including sender", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)

		saved := database.Message{
			Id:          1,
			ChannelName: "room1",
			Uid:         "u1",
			Username:    "Alice",
			Content:     "hi",
			CreatedAt:   time.Now().UTC().Round(time.Millisecond),
		}
		db.On("CreateMessage", database.CreateMessageParams{
			ChannelName: "room1",
			Uid:         "u1",
			Username:    "Alice",
			Content:     "hi",
		}).Return(saved, nil).Once()

		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, db, bus)
		sender := newTestClient(t, rs)
		other := newTestClient(t, rs)
		joinChannel(t, rs, sender, "room1", "u1", "Alice")
		joinChannel(t, rs, other, "room1", "u2", "Bob")

		rs.dispatch(sender, &ControlMessage{
			Action:      ActionSendMessage,
			ChannelName: "room1",
			Uid:         "u1",
			Username:    "Alice",
			Message:     "hi",
		})

		for _, c := range []*Client{sender, other} {
			event := recvEvent(t, c)
			assert.Equal(t, EventNewMessage, event["action"])
			msg := event["message"].(map[string]any)
			assert.Equal(t, float64(1), msg["id"])
			assert.Equal(t, "hi", msg["message"])
			assert.Equal(t, "Alice", msg["username"])
			// exactly once per member
			assertNoEvent(t, c)
		}
	})

	t.Run("persistence failure is reported to the sender only", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)
		db.On("CreateMessage", mock.Anything).Return(database.Message{}, assert.AnError).Once()

		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, db, bus)
		sender := newTestClient(t, rs)
		other := newTestClient(t, rs)
		joinChannel(t, rs, sender, "room1", "u1", "Alice")
		joinChannel(t, rs, other, "room1", "u2", "Bob")

		rs.dispatch(sender, &ControlMessage{Action: ActionSendMessage, ChannelName: "room1", Uid: "u1", Message: "hi"})

		event := recvEvent(t, sender)
		assert.Equal(t, EventError, event["action"])
		assertNoEvent(t, other)
	})
}

func TestHandleGetMessages(t *testing.T) {
	t.Run("returns newest messages to self only", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)

		rows := []database.Message{
			{Id: 5, ChannelName: "room1", Uid: "u2", Username: "Bob", Content: "later"},
			{Id: 4, ChannelName: "room1", Uid: "u1", Username: "Alice", Content: "earlier"},
		}
		db.On("GetMessages", "room1", 2).Return(rows, nil).Once()

		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, db, bus)
		c := newTestClient(t, rs)
		other := newTestClient(t, rs)
		joinChannel(t, rs, c, "room1", "u1", "Alice")
		joinChannel(t, rs, other, "room1", "u2", "Bob")

		rs.dispatch(c, &ControlMessage{Action: ActionGetMessages, ChannelName: "room1", Uid: "u1", Limit: 2})

		event := recvEvent(t, c)
		assert.Equal(t, EventMessages, event["action"])
		messages := event["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, float64(5), messages[0].(map[string]any)["id"], "expected newest message first")
		assert.Equal(t, float64(4), messages[1].(map[string]any)["id"])

		assertNoEvent(t, other)
	})

	t.Run("applies default limit", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessages", "room1", 50).Return([]database.Message{}, nil).Once()

		rs := newTestRelayServer(t, db, broker.NewMemoryPubSub())
		c := newTestClient(t, rs)

		rs.dispatch(c, &ControlMessage{Action: ActionGetMessages, ChannelName: "room1", Uid: "u1"})

		event := recvEvent(t, c)
		assert.Equal(t, EventMessages, event["action"])
	})

	t.Run("reports persistence failure", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)
		db.On("GetMessages", "room1", 50).Return([]database.Message(nil), assert.AnError).Once()

		rs := newTestRelayServer(t, db, broker.NewMemoryPubSub())
		c := newTestClient(t, rs)

		rs.dispatch(c, &ControlMessage{Action: ActionGetMessages, ChannelName: "room1", Uid: "u1"})

		event := recvEvent(t, c)
		assert.Equal(t, EventError, event["action"])
	})
}

func TestHandleUpdateStatus(t *testing.T) {
	db := &database.MockRelayRepository{}
	defer db.AssertExpectations(t)

	st := database.ParticipantStatus{ChannelName: "room1", Uid: "u1", IsCameraOff: true, IsMuted: false}
	db.On("UpsertParticipantStatus", st).Return(st, nil).Once()

	bus := broker.NewMemoryPubSub()
	defer bus.Close()

	rs := newTestRelayServer(t, db, bus)
	c := newTestClient(t, rs)
	other := newTestClient(t, rs)
	joinChannel(t, rs, c, "room1", "u1", "Alice")
	joinChannel(t, rs, other, "room1", "u2", "Bob")

	rs.dispatch(c, &ControlMessage{
		Action:      ActionUpdateStatus,
		ChannelName: "room1",
		Uid:         "u1",
		IsCameraOff: true,
		IsMuted:     false,
	})

	for _, member := range []*Client{c, other} {
		event := recvEvent(t, member)
		assert.Equal(t, EventStatusChanged, event["action"])
		assert.Equal(t, "u1", event["uid"])
		assert.Equal(t, true, event["isCameraOff"])
		assert.Equal(t, false, event["isMuted"])
	}
}

func TestHandleDeleteMessage(t *testing.T) {
	t.Run("broadcasts even when nothing matched", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteMessage", int64(42), "room1").Return(false, nil).Once()

		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, db, bus)
		c := newTestClient(t, rs)
		other := newTestClient(t, rs)
		joinChannel(t, rs, c, "room1", "u1", "Alice")
		joinChannel(t, rs, other, "room1", "u2", "Bob")

		rs.dispatch(c, &ControlMessage{Action: ActionDeleteMessage, ChannelName: "room1", Uid: "u1", MessageId: 42})

		for _, member := range []*Client{c, other} {
			event := recvEvent(t, member)
			assert.Equal(t, EventMessageDeleted, event["action"])
			assert.Equal(t, float64(42), event["messageId"])
		}
	})

	t.Run("store failure suppresses the broadcast", func(t *testing.T) {
		db := &database.MockRelayRepository{}
		defer db.AssertExpectations(t)
		db.On("DeleteMessage", int64(42), "room1").Return(false, assert.AnError).Once()

		bus := broker.NewMemoryPubSub()
		defer bus.Close()

		rs := newTestRelayServer(t, db, bus)
		c := newTestClient(t, rs)
		other := newTestClient(t, rs)
		joinChannel(t, rs, c, "room1", "u1", "Alice")
		joinChannel(t, rs, other, "room1", "u2", "Bob")

		rs.dispatch(c, &ControlMessage{Action: ActionDeleteMessage, ChannelName: "room1", Uid: "u1", MessageId: 42})

		event := recvEvent(t, c)
		assert.Equal(t, EventError, event["action"])
		assertNoEvent(t, other)
	})
}

func TestHandleToggleDevice(t *testing.T) {
	db := &database.MockRelayRepository{}
	defer db.AssertExpectations(t)

	// requested state true persists the inverted "off" flag on the target
	st := database.ParticipantStatus{ChannelName: "room1", Uid: "u2", IsCameraOff: false, IsMuted: false}
	db.On("SetParticipantDevice", "room1", "u2", database.DeviceMic, false).Return(st, nil).Once()

	bus := broker.NewMemoryPubSub()
	defer bus.Close()

	rs := newTestRelayServer(t, db, bus)
	host := newTestClient(t, rs)
	target := newTestClient(t, rs)
	joinChannel(t, rs, host, "room1", "u1", "Alice")
	joinChannel(t, rs, target, "room1", "u2", "Bob")

	rs.dispatch(host, &ControlMessage{
		Action:      ActionToggleDevice,
		ChannelName: "room1",
		Uid:         "u1",
		Device:      database.DeviceMic,
		State:       true,
		TargetUid:   "u2",
	})

	// both events reach every member, direct-acting command strictly first
	for _, member := range []*Client{host, target} {
		first := recvEvent(t, member)
		assert.Equal(t, EventDeviceToggled, first["action"])
		assert.Equal(t, "u2", first["uid"], "expected the target participant in the device event")
		assert.Equal(t, database.DeviceMic, first["device"])
		assert.Equal(t, true, first["state"])

		second := recvEvent(t, member)
		assert.Equal(t, EventStatusChanged, second["action"])
		assert.Equal(t, "u2", second["uid"])
		assert.Equal(t, false, second["isMuted"])
	}
}

func TestHandleEndMeeting(t *testing.T) {
	bus := broker.NewMemoryPubSub()
	defer bus.Close()

	rs := newTestRelayServer(t, &database.MockRelayRepository{}, bus)
	host := newTestClient(t, rs)
	other := newTestClient(t, rs)
	joinChannel(t, rs, host, "room1", "u1", "Alice")
	joinChannel(t, rs, other, "room1", "u2", "Bob")

	rs.dispatch(host, &ControlMessage{Action: ActionEndMeeting, ChannelName: "room1", Uid: "u1", Username: "Alice"})

	for _, member := range []*Client{host, other} {
		event := recvEvent(t, member)
		assert.Equal(t, EventMeetingEnded, event["action"])
		assert.Equal(t, "Alice", event["username"])
	}

	// participants are not disconnected
	assert.True(t, rs.registry.Contains("room1", host))
	assert.True(t, rs.registry.Contains("room1", other))
}

func TestUnknownActionIsNoOp(t *testing.T) {
	rs := newTestRelayServer(t, &database.MockRelayRepository{}, broker.NewMemoryPubSub())
	c := newTestClient(t, rs)

	rs.dispatch(c, &ControlMessage{Action: "bogus", ChannelName: "room1", Uid: "u1"})

	assertNoEvent(t, c)
}

func TestCleanupStopsForwarding(t *testing.T) {
	bus := broker.NewMemoryPubSub()
	defer bus.Close()

	rs := newTestRelayServer(t, &database.MockRelayRepository{}, bus)
	c := newTestClient(t, rs)
	other := newTestClient(t, rs)
	joinChannel(t, rs, c, "room1", "u1", "Alice")
	joinChannel(t, rs, other, "room1", "u2", "Bob")

	other.cleanup()

	assert.False(t, rs.registry.Contains("room1", other), "expected membership removed on close")
	assert.Nil(t, other.sub, "expected subscription released on close")

	// events published after the close reach remaining members only
	rs.dispatch(c, &ControlMessage{Action: ActionEndMeeting, ChannelName: "room1", Uid: "u1", Username: "Alice"})

	event := recvEvent(t, c)
	assert.Equal(t, EventMeetingEnded, event["action"])
	assertNoEvent(t, other)

	// teardown is idempotent
	other.cleanup()
}
