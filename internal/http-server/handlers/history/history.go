package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"credpool/entity"
	"credpool/lib/api/response"
	"credpool/lib/sl"
)

type Core interface {
	History(ctx context.Context, platform string, kind entity.AuditKind, from, to time.Time) ([]*entity.AuditEntry, error)
}

// Query reads the audit trail of one kind. Optional query params:
// platform, from, to (RFC 3339).
func Query(log *slog.Logger, handler Core, kind entity.AuditKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.history"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("kind", string(kind)),
		)

		platform := r.URL.Query().Get("platform")
		from, err := parseTime(r.URL.Query().Get("from"))
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid from: %v", err)))
			return
		}
		to, err := parseTime(r.URL.Query().Get("to"))
		if err != nil {
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid to: %v", err)))
			return
		}

		entries, err := handler.History(r.Context(), platform, kind, from, to)
		if err != nil {
			logger.Error("history query", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("Failed to load history"))
			return
		}

		render.JSON(w, r, response.Ok(entries))
	}
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, value)
}
