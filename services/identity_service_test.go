package services

import (
	"match-lab/auth"
	apperr "match-lab/errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIdentityService_StartSession_And_Resolve(t *testing.T) {
	req := require.New(t)
	svc := NewIdentityService(auth.NewTokenIssuer("secret", time.Hour))

	session, err := svc.StartSession("Alice")
	req.NoError(err)
	req.NotEmpty(session.Participant.ID)
	req.NotEmpty(session.Token)

	p, err := svc.Resolve(session.Token)
	req.NoError(err)
	req.Equal(session.Participant, p)

	// Two sessions never share an identity
	other, err := svc.StartSession("")
	req.NoError(err)
	req.NotEqual(session.Participant.ID, other.Participant.ID)
}

func TestIdentityService_Rejects(t *testing.T) {
	req := require.New(t)
	svc := NewIdentityService(auth.NewTokenIssuer("secret", time.Hour))

	_, err := svc.StartSession(strings.Repeat("x", 64))
	req.ErrorIs(err, apperr.ErrInvalidRequest)

	_, err = svc.Resolve("forged")
	req.ErrorIs(err, apperr.ErrNotAuthenticated)
}
