package server

import (
	"fmt"
	"match-lab/auth"
	"match-lab/domain"
	apperr "match-lab/errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/skip2/go-qrcode"
)

const (
	itemsPageSize = 20
	qrSize        = 320
)

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req auth.StartSessionRequest
	// an empty body starts an unlabelled session
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, s.log, err)
			return
		}
	}
	session, err := s.identity.StartSession(req.DisplayLabel)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusCreated, session)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusOK, p)
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req auth.CreateRoomRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, s.log, err)
			return
		}
		if err := auth.Validate(req); err != nil {
			writeError(w, s.log, err)
			return
		}
	}

	var room domain.Room
	if len(req.ItemIDs) > 0 {
		ids := lo.Map(req.ItemIDs, func(id string, _ int) domain.ItemID { return domain.ItemID(id) })
		room, err = s.sessions.CreateRoomWithItems(r.Context(), p.ID, ids)
	} else {
		room, err = s.sessions.CreateRoom(r.Context(), p.ID)
	}
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusCreated, room)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req auth.JoinRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := auth.Validate(req); err != nil {
		writeError(w, s.log, err)
		return
	}
	room, err := s.sessions.JoinRoomByCode(r.Context(), req.Code, p.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusOK, room)
}

func (s *Server) findByCode(w http.ResponseWriter, r *http.Request) {
	room, err := s.sessions.FindByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusOK, room)
}

// joinQRCode renders a PNG QR code pointing at the join page of a live room.
func (s *Server) joinQRCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if _, err := s.sessions.FindByCode(r.Context(), code); err != nil {
		writeError(w, s.log, err)
		return
	}

	png, err := qrcode.Encode(s.baseURL(r)+"/join/"+code, qrcode.Medium, qrSize)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) baseURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

// getRoom answers the room together with its match history, to its
// participants only.
func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	snap, err := s.sessions.Snapshot(r.Context(), domain.RoomID(chi.URLParam(r, "roomID")))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if !snap.Room.HasParticipant(p.ID) {
		writeError(w, s.log, apperr.ErrNotParticipant)
		return
	}
	writeOK(w, http.StatusOK, snap)
}

// roomItems resolves the room's item snapshot page by page.
func (s *Server) roomItems(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	room, err := s.sessions.GetRoomByID(r.Context(), domain.RoomID(chi.URLParam(r, "roomID")))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if !room.HasParticipant(p.ID) {
		writeError(w, s.log, apperr.ErrNotParticipant)
		return
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	offset = max(0, min(offset, len(room.ItemIDs)))
	end := min(offset+itemsPageSize, len(room.ItemIDs))

	items := s.catalog.FetchItemsByIDs(r.Context(), room.ItemIDs[offset:end])
	writeOK(w, http.StatusOK, map[string]any{
		"items":  items,
		"offset": offset,
		"total":  len(room.ItemIDs),
	})
}

// itemTrailer answers the item's trailer, or null when there is none.
func (s *Server) itemTrailer(w http.ResponseWriter, r *http.Request) {
	id := domain.ItemID(chi.URLParam(r, "itemID"))
	if !domain.ValidItemID(id) {
		writeError(w, s.log, fmt.Errorf("%w: invalid item id", apperr.ErrInvalidRequest))
		return
	}
	writeOK(w, http.StatusOK, s.catalog.FetchTrailer(r.Context(), id))
}

func (s *Server) submitPreference(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	var req auth.SubmitPreferenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := auth.Validate(req); err != nil {
		writeError(w, s.log, err)
		return
	}

	res, err := s.sessions.SubmitPreference(r.Context(), domain.RoomID(chi.URLParam(r, "roomID")),
		p.ID, domain.ItemID(req.ItemID), *req.Liked)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"duplicate": res.Duplicate,
		"match":     res.Match,
		"status":    res.Status,
	})
}

func (s *Server) confirmResume(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	status, err := s.sessions.ConfirmResume(r.Context(), domain.RoomID(chi.URLParam(r, "roomID")), p.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	p, err := auth.ParticipantFrom(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.sessions.LeaveRoom(r.Context(), domain.RoomID(chi.URLParam(r, "roomID")), p.ID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}
