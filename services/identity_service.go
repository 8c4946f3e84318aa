package services

import (
	"fmt"
	"match-lab/auth"
	"match-lab/domain"
	apperr "match-lab/errors"
	"time"

	"github.com/google/uuid"
)

type IIdentityService interface {
	StartSession(displayLabel string) (Session, error)
	Resolve(token string) (domain.Participant, error)
}

// Session is an anonymous identity and the bearer token that proves it.
type Session struct {
	Participant domain.Participant `json:"participant"`
	Token       string             `json:"token"`
	ExpiresAt   time.Time          `json:"expires_at"`
}

type IdentityService struct {
	issuer *auth.TokenIssuer
}

func NewIdentityService(issuer *auth.TokenIssuer) *IdentityService {
	return &IdentityService{issuer: issuer}
}

func (s *IdentityService) StartSession(displayLabel string) (Session, error) {
	if err := auth.Validate(auth.StartSessionRequest{DisplayLabel: displayLabel}); err != nil {
		return Session{}, err
	}

	p := domain.Participant{ID: domain.ParticipantID(uuid.NewString()), DisplayLabel: displayLabel}
	token, expiresAt, err := s.issuer.GenerateToken(p)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", apperr.ErrTokenGeneration, err)
	}
	return Session{Participant: p, Token: token, ExpiresAt: expiresAt}, nil
}

// Resolve maps a token back to its participant. Any failure is reported as
// ErrNotAuthenticated so callers can't tell an expired token from a forged one.
func (s *IdentityService) Resolve(token string) (domain.Participant, error) {
	p, err := s.issuer.ValidateToken(token)
	if err != nil {
		return domain.Participant{}, apperr.ErrNotAuthenticated
	}
	return p, nil
}
