package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"credpool/entity"
	"credpool/impl/pool"
	"credpool/lib/api/cont"
	"credpool/lib/api/response"
	"credpool/lib/sl"
)

type Core interface {
	KnownPlatform(name string) bool
	Credentials(ctx context.Context, platform string) ([]*entity.Credential, error)
	AddCredential(ctx context.Context, platform string, in *entity.CredentialInput) (*entity.Credential, error)
	EditCredential(ctx context.Context, platform, id string, patch *entity.CredentialPatch) (*entity.Credential, error)
	DeleteCredential(ctx context.Context, platform, id string) error
	DeleteAllCredentials(ctx context.Context, platform, confirm string) (int64, error)
	ImportCredentials(ctx context.Context, platform, content string) (*pool.ImportReport, error)
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.credentials"),
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

		creds, err := handler.Credentials(r.Context(), platform)
		if err != nil {
			logger.Error("list credentials", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("Failed to load credentials"))
			return
		}

		render.JSON(w, r, response.Ok(creds))
	}
}

func Add(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		var in entity.CredentialInput
		if err := render.Bind(r, &in); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		cred, err := handler.AddCredential(r.Context(), platform, &in)
		if err != nil {
			logger.Error("add credential", sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Add credential: %v", err)))
			return
		}
		logger.With(slog.String("credential", cred.Id)).Debug("credential added")

		render.JSON(w, r, response.Ok(cred))
	}
}

func Edit(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		var patch entity.CredentialPatch
		if err := render.Bind(r, &patch); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		cred, err := handler.EditCredential(r.Context(), platform, id, &patch)
		if err != nil {
			logger.Error("edit credential", slog.String("credential", id), sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Edit credential: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(cred))
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

		if err := handler.DeleteCredential(r.Context(), platform, id); err != nil {
			logger.Error("delete credential", slog.String("credential", id), sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Delete credential: %v", err)))
			return
		}

		render.JSON(w, r, response.Ok(nil))
	}
}

// DeleteAll empties the platform pool. Owner role plus a confirmation
// token repeating the platform name are both required; the browser's
// confirm dialog alone is not trusted.
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
			render.JSON(w, r, response.Error("Only owner can delete all credentials"))
			return
		}

		var req entity.DeleteAllRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		count, err := handler.DeleteAllCredentials(r.Context(), platform, req.Confirm)
		if err != nil {
			logger.Error("delete all credentials", sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Delete all: %v", err)))
			return
		}
		logger.With(slog.Int64("deleted", count)).Info("credential pool emptied")

		render.JSON(w, r, response.Ok(map[string]int64{"deleted": count}))
	}
}

func Import(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		var req entity.ImportRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}

		report, err := handler.ImportCredentials(r.Context(), platform, req.Content)
		if err != nil {
			logger.Error("import credentials", sl.Err(err))
			render.Status(r, response.StatusOf(err))
			render.JSON(w, r, response.Error(fmt.Sprintf("Import: %v", err)))
			return
		}
		logger.With(
			slog.Int("added", report.Added),
			slog.Int("skipped", report.Skipped),
		).Info("credentials imported")

		render.JSON(w, r, response.Ok(report))
	}
}
