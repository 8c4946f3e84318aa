package auth

import (
	"fmt"
	"match-lab/domain"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "match-lab"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	ParticipantID string `json:"participant_id"`
	DisplayLabel  string `json:"display_label,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks the bearer tokens of anonymous sessions.
type TokenIssuer struct {
	key      []byte
	duration time.Duration
	now      func() time.Time
}

func NewTokenIssuer(secret string, duration time.Duration) *TokenIssuer {
	return &TokenIssuer{key: []byte(secret), duration: duration, now: time.Now}
}

// GenerateToken creates a signed JWT for a participant.
func (i *TokenIssuer) GenerateToken(p domain.Participant) (string, time.Time, error) {
	issuedAt := i.now()
	expiresAt := issuedAt.Add(i.duration)

	claims := &CustomClaims{
		ParticipantID: string(p.ID),
		DisplayLabel:  p.DisplayLabel,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(p.ID),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    issuer,
		},
	}

	// HS256 (HMAC with SHA256)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses and validates the signature and expiration of a JWT string.
func (i *TokenIssuer) ValidateToken(tokenString string) (domain.Participant, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return i.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return domain.Participant{}, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.ParticipantID == "" {
		return domain.Participant{}, jwt.ErrSignatureInvalid
	}
	return domain.Participant{
		ID:           domain.ParticipantID(claims.ParticipantID),
		DisplayLabel: claims.DisplayLabel,
	}, nil
}
