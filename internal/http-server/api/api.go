package api

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"credpool/entity"
	"credpool/internal/config"
	"credpool/internal/http-server/handlers/allocate"
	"credpool/internal/http-server/handlers/credentials"
	"credpool/internal/http-server/handlers/errors"
	"credpool/internal/http-server/handlers/history"
	"credpool/internal/http-server/handlers/keys"
	"credpool/internal/http-server/handlers/stats"
	"credpool/internal/http-server/middleware/authenticate"
	"credpool/internal/http-server/middleware/timeout"
	"credpool/lib/sl"
)

type Server struct {
	conf       *config.Config
	httpServer *http.Server
	log        *slog.Logger
}

type Handler interface {
	authenticate.Authenticate
	credentials.Core
	keys.Core
	allocate.Core
	history.Core
	stats.Core
}

func New(conf *config.Config, log *slog.Logger, handler Handler) error {

	server := Server{
		conf: conf,
		log:  log.With(sl.Module("api.server")),
	}

	router := chi.NewRouter()
	router.Use(timeout.Timeout(5))
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(render.SetContentType(render.ContentTypeJSON))

	router.NotFound(errors.NotFound(log))
	router.MethodNotAllowed(errors.NotAllowed(log))

	router.Route("/v1", func(rootApi chi.Router) {
		rootApi.Use(authenticate.New(log, handler))
		rootApi.Route("/credentials/{platform}", func(cr chi.Router) {
			cr.Get("/", credentials.List(log, handler))
			cr.Post("/", credentials.Add(log, handler))
			cr.Delete("/", credentials.DeleteAll(log, handler))
			cr.Post("/import", credentials.Import(log, handler))
			cr.Put("/{id}", credentials.Edit(log, handler))
			cr.Delete("/{id}", credentials.Delete(log, handler))
		})
		rootApi.Route("/keys/{platform}", func(kr chi.Router) {
			kr.Get("/", keys.List(log, handler))
			kr.Post("/", keys.Generate(log, handler))
			kr.Delete("/", keys.DeleteAll(log, handler))
			kr.Delete("/{id}", keys.Delete(log, handler))
		})
		rootApi.Get("/claimed/{platform}", allocate.Claimed(log, handler))
		rootApi.Post("/claim/{platform}/{id}", allocate.Claim(log, handler))
		rootApi.Post("/redeem/{platform}", allocate.Redeem(log, handler))
		rootApi.Get("/history/claims", history.Query(log, handler, entity.AuditClaim))
		rootApi.Get("/history/redemptions", history.Query(log, handler, entity.AuditRedemption))
		rootApi.Get("/stats", stats.Get(log, handler))
	})

	httpLog := slog.NewLogLogger(log.Handler(), slog.LevelError)
	server.httpServer = &http.Server{
		Handler:      router,
		ErrorLog:     httpLog,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverAddress := fmt.Sprintf("%s:%s", conf.Listen.BindIp, conf.Listen.Port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		return err
	}

	server.log.Info("starting api server", slog.String("address", serverAddress))

	return server.httpServer.Serve(listener)
}
