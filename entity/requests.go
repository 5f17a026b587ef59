package entity

import (
	"net/http"

	"credpool/lib/validate"
)

// Request payloads for the allocation API. Each binds and validates
// itself through lib/validate.

type ClaimRequest struct {
	Actor Actor `json:"actor" validate:"required"`
}

func (c *ClaimRequest) Bind(_ *http.Request) error {
	return validate.Struct(c)
}

type RedeemRequest struct {
	KeyCode string `json:"key_code" validate:"required"`
	Actor   Actor  `json:"actor" validate:"required"`
}

func (r *RedeemRequest) Bind(_ *http.Request) error {
	return validate.Struct(r)
}

type CredentialInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (c *CredentialInput) Bind(_ *http.Request) error {
	return validate.Struct(c)
}

// CredentialPatch updates only the fields present, matching the admin
// panel's partial edit semantics.
type CredentialPatch struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty"`
	Status   string `json:"status" validate:"omitempty,oneof=active inactive claimed"`
}

func (c *CredentialPatch) Bind(_ *http.Request) error {
	return validate.Struct(c)
}

type ImportRequest struct {
	Content string `json:"content" validate:"required"`
}

func (i *ImportRequest) Bind(_ *http.Request) error {
	return validate.Struct(i)
}

type GenerateKeyRequest struct {
	Uses          int    `json:"uses" validate:"required,min=1"`
	Description   string `json:"description" validate:"omitempty"`
	ExpiresInDays int    `json:"expires_in_days" validate:"omitempty,min=0"`
}

func (g *GenerateKeyRequest) Bind(_ *http.Request) error {
	return validate.Struct(g)
}

// DeleteAllRequest carries the confirmation token for destructive bulk
// deletes. The token must repeat the platform name; a client-side
// confirm dialog alone is not trusted.
type DeleteAllRequest struct {
	Confirm string `json:"confirm" validate:"required"`
}

func (d *DeleteAllRequest) Bind(_ *http.Request) error {
	return validate.Struct(d)
}
