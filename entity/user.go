package entity

import (
	"net/http"
	"time"

	"credpool/lib/validate"
)

// OperatorRole controls panel access level: owners can run destructive
// bulk operations, admins manage day-to-day inventory.
type OperatorRole string

const (
	RoleOwner OperatorRole = "owner"
	RoleAdmin OperatorRole = "admin"
)

// User represents an API operator authenticated by Token. Operator
// records live in the store; this service never creates or edits them.
type User struct {
	Username     string       `json:"username" bson:"username" validate:"required"`
	Name         string       `json:"name" bson:"name" validate:"omitempty"`
	Token        string       `json:"token" bson:"token" validate:"required,min=1"`
	Role         OperatorRole `json:"role" bson:"role"`
	RegisteredAt time.Time    `json:"registered_at" bson:"registered_at"`
}

func (u *User) Bind(_ *http.Request) error {
	return validate.Struct(u)
}

func (u *User) IsOwner() bool {
	return u.Role == RoleOwner
}
