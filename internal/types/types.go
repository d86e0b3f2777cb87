package types

import "time"

// Message is the wire representation of a persisted chat message.
type Message struct {
	Id          int64     `json:"id"`
	ChannelName string    `json:"channelName"`
	Uid         string    `json:"uid"`
	Username    string    `json:"username"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ParticipantStatus is the wire representation of a participant's
// camera/mute state within a channel.
type ParticipantStatus struct {
	ChannelName string `json:"channelName"`
	Uid         string `json:"uid"`
	IsCameraOff bool   `json:"isCameraOff"`
	IsMuted     bool   `json:"isMuted"`
}
