package database

import "time"

type Message struct {
	Id          int64
	ChannelName string
	Uid         string
	Username    string
	Content     string
	CreatedAt   time.Time
}

type ParticipantStatus struct {
	ChannelName string
	Uid         string
	IsCameraOff bool
	IsMuted     bool
}

type CreateMessageParams struct {
	ChannelName string
	Uid         string
	Username    string
	Content     string
}

// Devices a participant can have toggled remotely. Each maps to one
// column of meeting_participants.
const (
	DeviceMic    = "mic"
	DeviceCamera = "camera"
)
