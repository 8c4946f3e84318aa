package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	apperr "match-lab/errors"
	"net/http"
)

// Resp is the envelope of every JSON answer.
type Resp struct {
	OK    bool   `json:"ok"`
	Info  any    `json:"info,omitempty"`
	Error string `json:"error,omitempty"`
}

func WriteJSON(w http.ResponseWriter, code int, resp Resp) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeOK(w http.ResponseWriter, code int, info any) {
	WriteJSON(w, code, Resp{OK: true, Info: info})
}

// writeError maps err to its status. Unknown errors are logged and hidden.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	code := apperr.MapToHTTPStatus(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		msg = http.StatusText(code)
	}
	WriteJSON(w, code, Resp{OK: false, Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidRequest, err)
	}
	return nil
}
