package response

import (
	"credpool/entity"
	"credpool/lib/clock"
	"net/http"
)

type Response struct {
	Data          interface{} `json:"data,omitempty"`
	Success       bool        `json:"success" validate:"required"`
	StatusMessage string      `json:"status_message"`
	Timestamp     string      `json:"timestamp"`
}

func Ok(data interface{}) Response {
	return Response{
		Data:          data,
		Success:       true,
		StatusMessage: "Success",
		Timestamp:     clock.Now(),
	}
}

func Error(message string) Response {
	return Response{
		Success:       false,
		StatusMessage: message,
		Timestamp:     clock.Now(),
	}
}

// StatusOf maps an allocation error to an HTTP status code. Untyped
// errors fall through to 400, matching the admin panel contract where
// business failures are client errors.
func StatusOf(err error) int {
	switch entity.KindOf(err) {
	case entity.ErrNotFound:
		return http.StatusNotFound
	case entity.ErrAlreadyClaimed, entity.ErrConflict:
		return http.StatusConflict
	case entity.ErrExpired, entity.ErrExhausted, entity.ErrNotAvailable:
		return http.StatusGone
	default:
		return http.StatusBadRequest
	}
}
