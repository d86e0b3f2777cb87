package relay

import (
	"encoding/json"

	"github.com/npezzotti/go-meetrelay/internal/database"
	"github.com/npezzotti/go-meetrelay/internal/stats"
	"github.com/npezzotti/go-meetrelay/internal/types"
	"github.com/samber/lo"
)

// dispatch routes a parsed control message to its action handler.
// Handlers run inline on the connection's read goroutine, so frames
// from one connection are handled in arrival order. Unrecognized
// actions are dropped without a reply.
func (rs *RelayServer) dispatch(c *Client, msg *ControlMessage) {
	switch msg.Action {
	case ActionJoin:
		rs.handleJoin(c, msg)
	case ActionGetMessages:
		rs.handleGetMessages(c, msg)
	case ActionSendMessage:
		rs.handleSendMessage(c, msg)
	case ActionUpdateStatus:
		rs.handleUpdateStatus(c, msg)
	case ActionDeleteMessage:
		rs.handleDeleteMessage(c, msg)
	case ActionToggleDevice:
		rs.handleToggleDevice(c, msg)
	case ActionEndMeeting:
		rs.handleEndMeeting(c, msg)
	default:
		rs.log.Printf("client %s: unknown action %q", c.sessionId, msg.Action)
	}
}

// handleJoin registers membership and acquires the channel subscription
// before acknowledging. A connection holds at most one channel: joining
// a new channel implicitly releases the previous one, and rejoining the
// held channel is an idempotent ack.
func (rs *RelayServer) handleJoin(c *Client, msg *ControlMessage) {
	if msg.ChannelName == "" {
		c.queueEvent(NewErrorEvent("channelName is required"))
		return
	}

	if c.channelName == msg.ChannelName {
		c.queueEvent(JoinedEvent{Action: EventJoined, ChannelName: c.channelName})
		return
	}

	if c.channelName != "" {
		rs.releaseChannel(c)
	}

	created := rs.registry.Join(msg.ChannelName, c)
	if err := rs.bridge.Subscribe(msg.ChannelName, c); err != nil {
		// roll back membership so it never outlives the subscription
		rs.registry.Leave(msg.ChannelName, c)
		rs.log.Printf("client %s: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to join channel"))
		return
	}

	if created {
		rs.stats.Incr(stats.ActiveChannels)
	}

	c.channelName = msg.ChannelName
	if msg.Uid != "" {
		c.uid = msg.Uid
	}
	if msg.Username != "" {
		c.username = msg.Username
	}

	c.queueEvent(JoinedEvent{Action: EventJoined, ChannelName: c.channelName})
}

func (rs *RelayServer) handleGetMessages(c *Client, msg *ControlMessage) {
	limit := msg.Limit
	if limit <= 0 {
		limit = rs.historyLimit
	}

	rows, err := rs.db.GetMessages(msg.ChannelName, limit)
	if err != nil {
		rs.log.Printf("client %s: GetMessages: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to fetch messages"))
		return
	}

	c.queueEvent(MessagesEvent{
		Action:      EventMessages,
		ChannelName: msg.ChannelName,
		Messages: lo.Map(rows, func(m database.Message, _ int) types.Message {
			return toWireMessage(m)
		}),
	})
}

func (rs *RelayServer) handleSendMessage(c *Client, msg *ControlMessage) {
	saved, err := rs.db.CreateMessage(database.CreateMessageParams{
		ChannelName: msg.ChannelName,
		Uid:         msg.Uid,
		Username:    msg.Username,
		Content:     msg.Message,
	})
	if err != nil {
		rs.log.Printf("client %s: CreateMessage: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to save message"))
		return
	}

	if rs.publishEvent(c, msg.ChannelName, NewMessageEvent{
		Action:  EventNewMessage,
		Message: toWireMessage(saved),
	}) {
		rs.stats.Incr(stats.MessagesRelayed)
	}
}

func (rs *RelayServer) handleUpdateStatus(c *Client, msg *ControlMessage) {
	st, err := rs.db.UpsertParticipantStatus(database.ParticipantStatus{
		ChannelName: msg.ChannelName,
		Uid:         msg.Uid,
		IsCameraOff: msg.IsCameraOff,
		IsMuted:     msg.IsMuted,
	})
	if err != nil {
		rs.log.Printf("client %s: UpsertParticipantStatus: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to update status"))
		return
	}

	rs.publishEvent(c, msg.ChannelName, statusChangedEvent(st))
}

// handleDeleteMessage deletes by (id, channel). The message-deleted
// event is broadcast even when nothing matched: the protocol is
// idempotent at the event level regardless of store effect.
func (rs *RelayServer) handleDeleteMessage(c *Client, msg *ControlMessage) {
	matched, err := rs.db.DeleteMessage(msg.MessageId, msg.ChannelName)
	if err != nil {
		rs.log.Printf("client %s: DeleteMessage: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to delete message"))
		return
	}

	if !matched {
		rs.log.Printf("client %s: no message %d in channel %q", c.sessionId, msg.MessageId, msg.ChannelName)
	}

	rs.publishEvent(c, msg.ChannelName, MessageDeletedEvent{
		Action:      EventMessageDeleted,
		ChannelName: msg.ChannelName,
		MessageId:   msg.MessageId,
	})
}

// handleToggleDevice acts on the target participant's device, not the
// requester's. The persisted "off" flag is the inverse of the requested
// state. Two events go out back-to-back on the channel topic: the
// direct-acting device-toggled first so the target's client can act on
// hardware, then participant-status-changed with the persisted flags so
// every client refreshes its view. Per-topic ordering keeps the pair in
// sequence.
func (rs *RelayServer) handleToggleDevice(c *Client, msg *ControlMessage) {
	target := msg.TargetUid
	if target == "" {
		target = msg.Uid
	}

	st, err := rs.db.SetParticipantDevice(msg.ChannelName, target, msg.Device, !msg.State)
	if err != nil {
		rs.log.Printf("client %s: SetParticipantDevice: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to toggle device"))
		return
	}

	if !rs.publishEvent(c, msg.ChannelName, DeviceToggledEvent{
		Action:      EventDeviceToggled,
		ChannelName: msg.ChannelName,
		Uid:         target,
		Device:      msg.Device,
		State:       msg.State,
	}) {
		return
	}

	rs.publishEvent(c, msg.ChannelName, statusChangedEvent(st))
}

// handleEndMeeting announces the end of the meeting. Participants are
// not disconnected; their clients decide what to do with the event.
func (rs *RelayServer) handleEndMeeting(c *Client, msg *ControlMessage) {
	rs.publishEvent(c, msg.ChannelName, MeetingEndedEvent{
		Action:      EventMeetingEnded,
		ChannelName: msg.ChannelName,
		Username:    msg.Username,
	})
}

// publishEvent publishes an event on the channel's topic so it fans out
// to every subscribed connection, the originator included. A failure is
// reported to the originator only.
func (rs *RelayServer) publishEvent(c *Client, channelName string, event any) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		rs.log.Printf("client %s: marshal event: %v", c.sessionId, err)
		c.queueEvent(NewErrorEvent("failed to encode event"))
		return false
	}

	if err := rs.bus.Publish(TopicFor(channelName), payload); err != nil {
		rs.log.Printf("client %s: publish to %q: %v", c.sessionId, channelName, err)
		c.queueEvent(NewErrorEvent("failed to publish event"))
		return false
	}

	return true
}

func toWireMessage(m database.Message) types.Message {
	return types.Message{
		Id:          m.Id,
		ChannelName: m.ChannelName,
		Uid:         m.Uid,
		Username:    m.Username,
		Message:     m.Content,
		CreatedAt:   m.CreatedAt,
	}
}

func statusChangedEvent(st database.ParticipantStatus) StatusChangedEvent {
	return StatusChangedEvent{
		Action:      EventStatusChanged,
		ChannelName: st.ChannelName,
		Uid:         st.Uid,
		IsCameraOff: st.IsCameraOff,
		IsMuted:     st.IsMuted,
	}
}
