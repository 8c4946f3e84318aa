package auth

import (
	"context"
	"match-lab/domain"
	apperr "match-lab/errors"
	"net/http"
	"strings"
)

type contextKey string

const participantKey contextKey = "participant"

// TokenQueryParam carries the token for websocket upgrades, where browsers
// can't set headers.
const TokenQueryParam = "access_token"

// Authenticate extracts the bearer token of r and resolves its participant.
func (i *TokenIssuer) Authenticate(r *http.Request) (domain.Participant, error) {
	tokenStr := r.URL.Query().Get(TokenQueryParam)
	if header := r.Header.Get("Authorization"); header != "" {
		// Expecting the standard "Bearer <token>" format
		tokenStr = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if tokenStr == "" {
		return domain.Participant{}, apperr.ErrNotAuthenticated
	}
	p, err := i.ValidateToken(tokenStr)
	if err != nil {
		return domain.Participant{}, apperr.ErrNotAuthenticated
	}
	return p, nil
}

func WithParticipant(ctx context.Context, p domain.Participant) context.Context {
	return context.WithValue(ctx, participantKey, p)
}

// ParticipantFrom returns the identity injected by the HTTP middleware.
func ParticipantFrom(ctx context.Context) (domain.Participant, error) {
	p, ok := ctx.Value(participantKey).(domain.Participant)
	if !ok || p.ID == "" {
		return domain.Participant{}, apperr.ErrNotAuthenticated
	}
	return p, nil
}
