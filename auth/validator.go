package auth

import (
	"fmt"
	apperr "match-lab/errors"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type StartSessionRequest struct {
	DisplayLabel string `json:"display_label" validate:"omitempty,max=32,printascii"`
}

type JoinRoomRequest struct {
	Code string `json:"code" validate:"required,numeric,len=4"`
}

type CreateRoomRequest struct {
	// ItemIDs is optional; without it the room snapshots the catalog.
	ItemIDs []string `json:"item_ids" validate:"omitempty,max=100,dive,required,max=64,printascii,excludesall=:"`
}

type SubmitPreferenceRequest struct {
	ItemID string `json:"item_id" validate:"required,max=64,printascii,excludesall=:"`
	// Liked is a pointer so that a missing verdict is told apart from a dislike.
	Liked *bool `json:"liked" validate:"required"`
}

// Validate checks a request against its struct tags. Failures wrap ErrInvalidRequest.
func Validate(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidRequest, err.Error())
	}
	return nil
}
