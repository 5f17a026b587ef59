package entity

import "time"

type AuditKind string

const (
	AuditClaim      AuditKind = "claim"
	AuditRedemption AuditKind = "redemption"
	AuditRelease    AuditKind = "release"
)

// AuditEntry is an immutable record of one successful allocation.
// Entries are append-only; nothing in the claim or redemption decision
// path ever reads them back.
type AuditEntry struct {
	Id         string    `json:"id" bson:"_id"`
	Kind       AuditKind `json:"kind" bson:"kind"`
	Platform   string    `json:"platform" bson:"platform"`
	ResourceId string    `json:"resource_id" bson:"resource_id"`
	Actor      Actor     `json:"actor" bson:"actor"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}
