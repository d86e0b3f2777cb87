package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRelayRepository struct {
	mock.Mock
}

func (m *MockRelayRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRelayRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockRelayRepository) GetMessages(channelName string, limit int) ([]Message, error) {
	args := m.Called(channelName, limit)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockRelayRepository) DeleteMessage(id int64, channelName string) (bool, error) {
	args := m.Called(id, channelName)
	return args.Bool(0), args.Error(1)
}
func (m *MockRelayRepository) UpsertParticipantStatus(status ParticipantStatus) (ParticipantStatus, error) {
	args := m.Called(status)
	return args.Get(0).(ParticipantStatus), args.Error(1)
}
func (m *MockRelayRepository) SetParticipantDevice(channelName, uid, device string, off bool) (ParticipantStatus, error) {
	args := m.Called(channelName, uid, device, off)
	return args.Get(0).(ParticipantStatus), args.Error(1)
}
func (m *MockRelayRepository) GetParticipantStatuses(channelName string) ([]ParticipantStatus, error) {
	args := m.Called(channelName)
	return args.Get(0).([]ParticipantStatus), args.Error(1)
}
