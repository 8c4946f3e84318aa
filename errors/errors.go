package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAuthenticated    = fmt.Errorf("not authenticated")
	ErrRoomNotFound        = fmt.Errorf("room not found")
	ErrRoomFull            = fmt.Errorf("room is full")
	ErrRoomAlreadyStarted  = fmt.Errorf("room already started")
	ErrRoomEnded           = fmt.Errorf("room has ended")
	ErrCodeSpaceExhausted  = fmt.Errorf("no room code available")
	ErrIngestionRejected   = fmt.Errorf("preference rejected")
	ErrProviderUnavailable = fmt.Errorf("catalog provider unavailable")

	ErrNotParticipant    = fmt.Errorf("not a participant of this room")
	ErrUnknownItem       = fmt.Errorf("item is not part of this room")
	ErrConcurrentUpdate  = fmt.Errorf("too many concurrent updates on room")
	ErrInvalidRequest    = fmt.Errorf("invalid request")
	ErrTokenGeneration   = fmt.Errorf("failed to generate token")
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrSinkClosed        = fmt.Errorf("sink closed")
	ErrSinkOverflow      = fmt.Errorf("sink buffer overflow")
	ErrUnsupportedDriver = fmt.Errorf("unsupported storage driver")
)

// MapToHTTPStatus translates a service error into the status code returned to clients.
// Order matters: an ingestion rejected because the room ended is reported as gone.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotParticipant):
		return http.StatusForbidden
	case errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRoomEnded):
		return http.StatusGone
	case errors.Is(err, ErrRoomFull), errors.Is(err, ErrRoomAlreadyStarted),
		errors.Is(err, ErrIngestionRejected), errors.Is(err, ErrConcurrentUpdate):
		return http.StatusConflict
	case errors.Is(err, ErrUnknownItem), errors.Is(err, ErrInvalidRequest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrCodeSpaceExhausted), errors.Is(err, ErrProviderUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
