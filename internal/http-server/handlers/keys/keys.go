package keys

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"credpool/entity"
	"credpool/lib/api/cont"
	"credpool/lib/api/response"
	"credpool/lib/sl"
)

type Core interface {
	KnownPlatform(name string) bool
	Keys(ctx context.Context, platform string) ([]*entity.RedemptionKey, error)
	GenerateKey(ctx context.Context, platform string, req *entity.GenerateKeyRequest) (*entity.RedemptionKey, error)
	DeleteKey(ctx context.Context, platform, id string) error
	DeleteAllKeys(ctx context.Context, platform, confirm string) (int64, error)
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.keys"),
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("platform", chi.URLParam(r, "platform")),
	)
}

func checkPlatform(w http.ResponseWriter, r *http.Request, handler Core) (string, bool) {
	platform := chi.URLParam(r, "platform")
	if !handler.KnownPlatform(platform) {
		render.Status(r, 400)
		render.JSON(w, r, response.Error("Invalid platform"))
		return "", false
	}
	return platform, true
}

func List(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		keys, err := handler.Keys(r.Context(), platform)
		if err != nil {
			logger.Error("list keys", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("Failed to load keys"))
			return
		}

		render.JSON(w, r, response.Ok(keys))
	}
}

func Generate(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		var req entity.GenerateKeyRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		key, err := handler.GenerateKey(r.Context(), platform, &req)
		if err != nil {
			logger.Error("generate key", sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Generate key: %v", err)))
			return
		}
		logger.With(
			slog.String("key", key.Id),
			slog.Int("uses", key.Uses),
		).Debug("key generated")

		render.JSON(w, r, response.Ok(key))
	}
}

func Delete(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		if err := handler.DeleteKey(r.Context(), platform, id); err != nil {
			logger.Error("delete key", slog.String("key", id), sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Delete key: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(nil))
	}
}

func DeleteAll(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		user := cont.GetUser(r.Context())
		if !user.IsOwner() {
			logger.Warn("delete all refused", slog.String("user", user.Username))
			render.Status(r, 403)
			render.JSON(w, r, response.Error("Only owner can delete all keys"))
			return
		}

		var req entity.DeleteAllRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		count, err := handler.DeleteAllKeys(r.Context(), platform, req.Confirm)
		if err != nil {
			logger.Error("delete all keys", sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Delete all: %v", err)))
			return
		}
		logger.With(slog.Int64("deleted", count)).Info("key pool emptied")

		render.JSON(w, r, response.Ok(map[string]int64{"deleted": count}))
	}
}
