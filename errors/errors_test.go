package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrNotAuthenticated, http.StatusUnauthorized},
		{ErrNotParticipant, http.StatusForbidden},
		{ErrRoomNotFound, http.StatusNotFound},
		{ErrRoomEnded, http.StatusGone},
		{ErrRoomFull, http.StatusConflict},
		{ErrRoomAlreadyStarted, http.StatusConflict},
		{ErrConcurrentUpdate, http.StatusConflict},
		{fmt.Errorf("%w: paused", ErrIngestionRejected), http.StatusConflict},
		{ErrUnknownItem, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: bad json", ErrInvalidRequest), http.StatusUnprocessableEntity},
		{ErrCodeSpaceExhausted, http.StatusServiceUnavailable},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.err), func(t *testing.T) {
			require.Equal(t, tt.want, MapToHTTPStatus(tt.err))
		})
	}
}

func TestMapToHTTPStatus_Ended_Ingestion_Is_Gone(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrIngestionRejected, ErrRoomEnded)
	require.Equal(t, http.StatusGone, MapToHTTPStatus(err))
}
