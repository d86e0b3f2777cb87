package database

import (
	"fmt"
	"time"
)

func (db *PgRelayRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO chat_messages (channel_name, uid, username, message, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at",
		params.ChannelName,
		params.Uid,
		params.Username,
		params.Content,
		time.Now().UTC(),
	)

	msg := Message{
		ChannelName: params.ChannelName,
		Uid:         params.Uid,
		Username:    params.Username,
		Content:     params.Content,
	}
	err := res.Scan(
		&msg.Id,
		&msg.CreatedAt,
	)

	return msg, err
}

// GetMessages returns up to limit messages of a channel, newest first.
func (db *PgRelayRepository) GetMessages(channelName string, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, channel_name, uid, username, message, created_at FROM chat_messages "+
			"WHERE channel_name = $1 ORDER BY created_at DESC LIMIT $2",
		channelName,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.Id,
			&msg.ChannelName,
			&msg.Uid,
			&msg.Username,
			&msg.Content,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// DeleteMessage removes a message by id within a channel. It reports
// whether a row actually matched.
func (db *PgRelayRepository) DeleteMessage(id int64, channelName string) (bool, error) {
	res, err := db.conn.Exec(
		"DELETE FROM chat_messages WHERE id = $1 AND channel_name = $2",
		id,
		channelName,
	)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (db *PgRelayRepository) UpsertParticipantStatus(status ParticipantStatus) (ParticipantStatus, error) {
	res := db.conn.QueryRow(
		"INSERT INTO meeting_participants (channel_name, uid, is_camera_off, is_muted) "+
			"VALUES ($1, $2, $3, $4) "+
			"ON CONFLICT (channel_name, uid) DO UPDATE "+
			"SET is_camera_off = EXCLUDED.is_camera_off, is_muted = EXCLUDED.is_muted "+
			"RETURNING channel_name, uid, is_camera_off, is_muted",
		status.ChannelName,
		status.Uid,
		status.IsCameraOff,
		status.IsMuted,
	)

	var st ParticipantStatus
	err := res.Scan(
		&st.ChannelName,
		&st.Uid,
		&st.IsCameraOff,
		&st.IsMuted,
	)

	return st, err
}

// SetParticipantDevice upserts the "off" flag of a single device on a
// participant's record, leaving the other device untouched, and returns
// the resulting row.
func (db *PgRelayRepository) SetParticipantDevice(channelName, uid, device string, off bool) (ParticipantStatus, error) {
	var column string
	switch device {
	case DeviceMic:
		column = "is_muted"
	case DeviceCamera:
		column = "is_camera_off"
	default:
		return ParticipantStatus{}, fmt.Errorf("unknown device %q", device)
	}

	query := fmt.Sprintf(
		"INSERT INTO meeting_participants (channel_name, uid, %[1]s) "+
			"VALUES ($1, $2, $3) "+
			"ON CONFLICT (channel_name, uid) DO UPDATE SET %[1]s = EXCLUDED.%[1]s "+
			"RETURNING channel_name, uid, is_camera_off, is_muted",
		column,
	)

	res := db.conn.QueryRow(query, channelName, uid, off)

	var st ParticipantStatus
	err := res.Scan(
		&st.ChannelName,
		&st.Uid,
		&st.IsCameraOff,
		&st.IsMuted,
	)

	return st, err
}

func (db *PgRelayRepository) GetParticipantStatuses(channelName string) ([]ParticipantStatus, error) {
	rows, err := db.conn.Query(
		"SELECT channel_name, uid, is_camera_off, is_muted FROM meeting_participants "+
			"WHERE channel_name = $1 ORDER BY uid",
		channelName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []ParticipantStatus
	for rows.Next() {
		var st ParticipantStatus
		if err := rows.Scan(
			&st.ChannelName,
			&st.Uid,
			&st.IsCameraOff,
			&st.IsMuted,
		); err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}

	return statuses, rows.Err()
}
