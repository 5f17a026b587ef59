package entity

import "time"

type CredentialStatus string

const (
	CredentialActive   CredentialStatus = "active"
	CredentialInactive CredentialStatus = "inactive"
	CredentialClaimed  CredentialStatus = "claimed"
)

// ValidCredentialStatus reports whether s is one of the admin-settable
// statuses. "claimed" is reachable only through the claim path.
func ValidCredentialStatus(s CredentialStatus) bool {
	return s == CredentialActive || s == CredentialInactive || s == CredentialClaimed
}

// Credential is a single-claim account record. ClaimedBy is set exactly
// when Status == CredentialClaimed and is immutable afterwards except by
// administrative delete.
type Credential struct {
	Id                string           `json:"id" bson:"_id"`
	Platform          string           `json:"platform" bson:"platform"`
	Email             string           `json:"email" bson:"email"`
	Password          string           `json:"password" bson:"password"`
	Status            CredentialStatus `json:"status" bson:"status"`
	ClaimedBy         string           `json:"claimed_by,omitempty" bson:"claimed_by,omitempty"`
	ClaimedByName     string           `json:"claimed_by_name,omitempty" bson:"claimed_by_name,omitempty"`
	ClaimedByUsername string           `json:"claimed_by_username,omitempty" bson:"claimed_by_username,omitempty"`
	ClaimedAt         time.Time        `json:"claimed_at,omitempty" bson:"claimed_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

func (c *Credential) IsActive() bool {
	return c.Status == CredentialActive
}

func (c *Credential) IsClaimed() bool {
	return c.Status == CredentialClaimed
}

// MarkClaimed performs the active → claimed transition in place.
func (c *Credential) MarkClaimed(actor Actor, at time.Time) {
	c.Status = CredentialClaimed
	c.ClaimedBy = actor.Id
	c.ClaimedByName = actor.FullName
	c.ClaimedByUsername = actor.Username
	c.ClaimedAt = at
}

// Release undoes MarkClaimed; used only to roll back a claim whose
// audit record could not be written.
func (c *Credential) Release() {
	c.Status = CredentialActive
	c.ClaimedBy = ""
	c.ClaimedByName = ""
	c.ClaimedByUsername = ""
	c.ClaimedAt = time.Time{}
}
