package entity

import (
	"net/http"

	"credpool/lib/validate"
)

// Actor identifies the end user a resource is allocated to.
// The bot runtime supplies Telegram user ids as strings; the core
// treats the id as opaque.
type Actor struct {
	Id       string `json:"user_id" bson:"user_id" validate:"required"`
	Username string `json:"username" bson:"username" validate:"omitempty"`
	FullName string `json:"full_name" bson:"full_name" validate:"omitempty"`
}

func (a *Actor) Bind(_ *http.Request) error {
	return validate.Struct(a)
}
