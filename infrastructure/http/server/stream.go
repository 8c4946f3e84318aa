package server

import (
	"match-lab/auth"
	"match-lab/domain"
	"match-lab/domain/event"
	apperr "match-lab/errors"
	"match-lab/sink"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Frame is one websocket message sent to the client.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const snapshotFrame = "snapshot"

func toFrame(msg sink.Message) Frame {
	if msg.Snapshot != nil {
		return Frame{Type: snapshotFrame, Data: msg.Snapshot}
	}
	return Frame{Type: string(msg.Event.Kind()), Data: event.Wrap(msg.Event)}
}

// streamEvents upgrades to a websocket, sends the room snapshot, then every
// later event of the room in order. The sink is registered before the
// snapshot is read, so nothing committed in between is lost.
// This method blocks until the client disconnects, the room ends or the
// client falls too far behind.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	roomID := domain.RoomID(chi.URLParam(r, "roomID"))
	room, err := s.sessions.GetRoomByID(r.Context(), roomID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if !room.HasParticipant(p.ID) {
		writeError(w, s.log, apperr.ErrNotParticipant)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered
		s.log.Debug("Websocket upgrade failed", "room_id", roomID, "error", err)
		return
	}
	defer conn.Close()

	stream := sink.NewStreamSink(s.log, s.connectionBufferSize)
	defer stream.Close()
	connectionID := uuid.NewString()
	s.connections.RegisterConnection(connectionID, roomID, stream)
	defer s.connections.UnregisterConnection(connectionID, roomID)

	snap, err := s.sessions.Snapshot(r.Context(), roomID)
	if err == nil {
		err = stream.Prime(snap)
	}
	if err != nil {
		s.log.Error("Failed to prime stream", "room_id", roomID, "error", err)
		s.closeWith(conn, websocket.CloseInternalServerErr, "snapshot unavailable")
		return
	}

	// the client never talks, reading only detects its departure
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				stream.Close()
				return
			}
		}
	}()

	for msg := range stream.Messages() {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err := conn.WriteJSON(toFrame(msg)); err != nil {
			s.log.Warn("Failed to push event to stream", "participant_id", p.ID, "room_id", roomID, "error", err)
			return
		}
	}

	if err := stream.Err(); err != nil {
		s.log.Warn("Stream cut off", "participant_id", p.ID, "room_id", roomID, "error", err)
		s.closeWith(conn, websocket.CloseTryAgainLater, err.Error())
		return
	}
	s.closeWith(conn, websocket.CloseNormalClosure, "")
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason),
		time.Now().Add(s.writeTimeout))
}
