// Package allocate exposes the two bot-facing operations: claiming a
// credential and redeeming a key. Failures come back with the
// structured allocation kind so the bot can render specific messages.
package allocate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"credpool/entity"
	"credpool/impl/redeem"
	"credpool/lib/api/response"
	"credpool/lib/sl"
)

type Core interface {
	KnownPlatform(name string) bool
	Claim(ctx context.Context, platform, id string, actor entity.Actor) (*entity.Credential, error)
	ClaimedCredentials(ctx context.Context, platform string) ([]*entity.Credential, error)
	Redeem(ctx context.Context, platform, code string, actor entity.Actor) (*redeem.Result, error)
}

func requestLogger(log *slog.Logger, r *http.Request) *slog.Logger {
	return log.With(
		sl.Module("http.handlers.allocate"),
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

// failure renders an allocation error with its structured detail so
// callers never have to parse prose.
func failure(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, response.StatusOf(err))
	resp := response.Error(err.Error())
	var ae *entity.AllocError
	if errors.As(err, &ae) {
		resp.Data = ae
	}
	render.JSON(w, r, resp)
}

func Claim(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		var req entity.ClaimRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(
			slog.String("credential", id),
			slog.String("user_id", req.Actor.Id),
		)

		cred, err := handler.Claim(r.Context(), platform, id, req.Actor)
		if err != nil {
			logger.Warn("claim rejected", sl.Err(err))
			failure(w, r, err)
			return
		}
		logger.Debug("credential claimed")

		render.JSON(w, r, response.Ok(cred))
	}
}

func Claimed(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		creds, err := handler.ClaimedCredentials(r.Context(), platform)
		if err != nil {
			logger.Error("list claimed", sl.Err(err))
			render.Status(r, 500)
			render.JSON(w, r, response.Error("Failed to load claimed credentials"))
			return
		}

		render.JSON(w, r, response.Ok(creds))
	}
}

func Redeem(log *slog.Logger, handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(log, r)

		platform, ok := checkPlatform(w, r, handler)
		if !ok {
			return
		}

		var req entity.RedeemRequest
		if err := render.Bind(r, &req); err != nil {
			logger.Warn("invalid request body", sl.Err(err))
			render.Status(r, 400)
			render.JSON(w, r, response.Error(fmt.Sprintf("Invalid request: %v", err)))
			return
		}
		logger = logger.With(
			sl.Secret("key_code", req.KeyCode),
			slog.String("user_id", req.Actor.Id),
		)

		result, err := handler.Redeem(r.Context(), platform, req.KeyCode, req.Actor)
		if err != nil {
			logger.Warn("redemption rejected", sl.Err(err))
			failure(w, r, err)
			return
		}
		if result.AlreadyRedeemed {
			logger.Debug("repeat redemption, no-op")
		} else {
			logger.Debug("key redeemed")
		}

		render.JSON(w, r, response.Ok(result))
	}
}
