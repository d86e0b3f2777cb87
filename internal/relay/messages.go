package relay

import (
	"github.com/npezzotti/go-meetrelay/internal/types"
)

// Action kinds accepted from clients.
const (
	ActionJoin          = "join"
	ActionGetMessages   = "get-messages"
	ActionSendMessage   = "send-message"
	ActionUpdateStatus  = "update-status"
	ActionDeleteMessage = "delete-message"
	ActionToggleDevice  = "toggle-device"
	ActionEndMeeting    = "end-meeting"
)

// Event kinds forwarded to clients.
const (
	EventJoined         = "joined"
	EventMessages       = "messages"
	EventNewMessage     = "new-message"
	EventStatusChanged  = "participant-status-changed"
	EventMessageDeleted = "message-deleted"
	EventDeviceToggled  = "device-toggled"
	EventMeetingEnded   = "meeting-ended"
	EventError          = "error"
)

// ControlMessage is one inbound frame: an action kind plus the fields
// that action uses. Unused fields are simply absent on the wire.
type ControlMessage struct {
	Action      string `json:"action"`
	ChannelName string `json:"channelName"`
	Uid         string `json:"uid"`
	Username    string `json:"username,omitempty"`
	Message     string `json:"message,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	IsCameraOff bool   `json:"isCameraOff,omitempty"`
	IsMuted     bool   `json:"isMuted,omitempty"`
	MessageId   int64  `json:"messageId,omitempty"`
	Device      string `json:"device,omitempty"`
	State       bool   `json:"state,omitempty"`
	TargetUid   string `json:"targetUid,omitempty"`
}

type JoinedEvent struct {
	Action      string `json:"action"`
	ChannelName string `json:"channelName"`
}

type MessagesEvent struct {
	Action      string          `json:"action"`
	ChannelName string          `json:"channelName"`
	Messages    []types.Message `json:"messages"`
}

type NewMessageEvent struct {
	Action  string        `json:"action"`
	Message types.Message `json:"message"`
}

type StatusChangedEvent struct {
	Action      string `json:"action"`
	ChannelName string `json:"channelName"`
	Uid         string `json:"uid"`
	IsCameraOff bool   `json:"isCameraOff"`
	IsMuted     bool   `json:"isMuted"`
}

type MessageDeletedEvent struct {
	Action      string `json:"action"`
	ChannelName string `json:"channelName"`
	MessageId   int64  `json:"messageId"`
}

// DeviceToggledEvent is the direct-acting device command: Uid is the
// target participant whose client should act on it.
type DeviceToggledEvent struct {
	Action      string `json:"action"`
	ChannelName string `json:"channelName"`
	Uid         string `json:"uid"`
	Device      string `json:"device"`
	State       bool   `json:"state"`
}

type MeetingEndedEvent struct {
	Action      string `json:"action"`
	ChannelName string `json:"channelName"`
	Username    string `json:"username"`
}

type ErrorEvent struct {
	Action  string `json:"action"`
	Message string `json:"message"`
}

func NewErrorEvent(message string) ErrorEvent {
	return ErrorEvent{
		Action:  EventError,
		Message: message,
	}
}
