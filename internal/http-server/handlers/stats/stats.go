package stats

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"credpool/impl/pool"
	"credpool/lib/api/response"
	"credpool/lib/sl"
)

type Core interface {
	Platforms() []string
	Stats(ctx context.Context) (map[string]*pool.PlatformStats, error)
}

func Get(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With(
			sl.Module("http.handlers.stats"),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		stats, err := handler.Stats(r.Context())
		if err != nil {
			logger.Error("collect stats", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("Failed to collect stats"))
			return
		}

		render.JSON(w, r, response.Ok(map[string]interface{}{
			"platforms": handler.Platforms(),
			"stats":     stats,
		}))
	}
}
