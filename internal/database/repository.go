package database

// RelayRepository is the persistence gateway for the relay. The store is
// plain CRUD: messages are immutable after insert except for deletion,
// participant status is last-write-wins.
type RelayRepository interface {
	Ping() error
	CreateMessage(params CreateMessageParams) (Message, error)
	GetMessages(channelName string, limit int) ([]Message, error)
	DeleteMessage(id int64, channelName string) (bool, error)
	UpsertParticipantStatus(status ParticipantStatus) (ParticipantStatus, error)
	SetParticipantDevice(channelName, uid, device string, off bool) (ParticipantStatus, error)
	GetParticipantStatuses(channelName string) ([]ParticipantStatus, error)
}
