package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-meetrelay/internal/database"
	"github.com/npezzotti/go-meetrelay/internal/relay"
	"github.com/npezzotti/go-meetrelay/internal/types"
	"github.com/samber/lo"
)

const defaultMessagesLimit = 50

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RelayApp) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *RelayApp) getMessages(w http.ResponseWriter, r *http.Request) {
	channelName := r.URL.Query().Get("channelName")
	if channelName == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	limit := defaultMessagesLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.db.GetMessages(channelName, limit)
	if err != nil {
		s.log.Println("get messages:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(messages, func(m database.Message, _ int) types.Message {
		return types.Message{
			Id:          m.Id,
			ChannelName: m.ChannelName,
			Uid:         m.Uid,
			Username:    m.Username,
			Message:     m.Content,
			CreatedAt:   m.CreatedAt,
		}
	}))
}

func (s *RelayApp) getParticipants(w http.ResponseWriter, r *http.Request) {
	channelName := r.URL.Query().Get("channelName")
	if channelName == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	statuses, err := s.db.GetParticipantStatuses(channelName)
	if err != nil {
		s.log.Println("get participants:", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, lo.Map(statuses, func(st database.ParticipantStatus, _ int) types.ParticipantStatus {
		return types.ParticipantStatus{
			ChannelName: st.ChannelName,
			Uid:         st.Uid,
			IsCameraOff: st.IsCameraOff,
			IsMuted:     st.IsMuted,
		}
	}))
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	id, err := s.identityFromRequest(r)
	if err != nil {
		s.log.Println("resolve identity:", err)
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := relay.NewClient(id, conn, s.rs, s.log)

	s.rs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
