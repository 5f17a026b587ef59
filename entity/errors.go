package entity

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	ErrNotFound        ErrorKind = "not_found"
	ErrNotAvailable    ErrorKind = "not_available"
	ErrAlreadyClaimed  ErrorKind = "already_claimed"
	ErrExpired         ErrorKind = "expired"
	ErrExhausted       ErrorKind = "exhausted"
	ErrAlreadyRedeemed ErrorKind = "already_redeemed"
	ErrConflict        ErrorKind = "conflict"
	ErrValidation      ErrorKind = "validation"
)

// AllocError is the structured failure returned by claim and redemption
// operations. Callers switch on Kind and render their own message;
// ClaimedBy carries the existing claimant for already_claimed results.
type AllocError struct {
	Kind       ErrorKind
	Platform   string
	ResourceId string
	ClaimedBy  string
	Message    string
}

func (e *AllocError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.ResourceId != "" {
		return fmt.Sprintf("%s: %s/%s", e.Kind, e.Platform, e.ResourceId)
	}
	return string(e.Kind)
}

// KindOf extracts the error kind, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var ae *AllocError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

func NotFoundError(platform, resourceId string) error {
	return &AllocError{Kind: ErrNotFound, Platform: platform, ResourceId: resourceId}
}

func NotAvailableError(platform, resourceId string) error {
	return &AllocError{Kind: ErrNotAvailable, Platform: platform, ResourceId: resourceId}
}

func AlreadyClaimedError(platform, resourceId, claimedBy string) error {
	return &AllocError{Kind: ErrAlreadyClaimed, Platform: platform, ResourceId: resourceId, ClaimedBy: claimedBy}
}

func ExpiredError(platform, resourceId string) error {
	return &AllocError{Kind: ErrExpired, Platform: platform, ResourceId: resourceId}
}

func ExhaustedError(platform, resourceId string) error {
	return &AllocError{Kind: ErrExhausted, Platform: platform, ResourceId: resourceId}
}

func ConflictError(platform, resourceId string) error {
	return &AllocError{Kind: ErrConflict, Platform: platform, ResourceId: resourceId}
}

func ValidationError(message string) error {
	return &AllocError{Kind: ErrValidation, Message: message}
}
