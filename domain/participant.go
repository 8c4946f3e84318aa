// Package domain contains core concepts of the match session.
// This file defines Participant identities.
// No runtime, network, or storage logic should be added here.
package domain

type ParticipantID string

// Participant is the identity handed out by the identity provider.
// DisplayLabel is cosmetic and never used for authorization.
type Participant struct {
	ID           ParticipantID `json:"participant_id"`
	DisplayLabel string        `json:"display_label"`
}
