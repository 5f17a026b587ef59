package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"path/filepath"

	"credpool/impl/audit"
	"credpool/impl/auth"
	"credpool/impl/claim"
	"credpool/impl/core"
	"credpool/impl/pool"
	"credpool/impl/redeem"
	"credpool/internal/config"
	"credpool/internal/database"
	"credpool/internal/http-server/api"
	"credpool/internal/notify"
	"credpool/lib/guard"
	"credpool/lib/logger"
	"credpool/lib/sl"
)

const logFileName = "credpool.log"

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, filepath.Join(*logPath, logFileName))
	log.Info("starting credpool",
		slog.String("config", *configPath),
		slog.String("env", conf.Env),
	)

	mongo := database.NewMongoClient(conf)

	var alerts *notify.Telegram
	if conf.Telegram.Enabled {
		level := alertLevel(conf.Telegram.AlertLevel)
		tg, err := notify.NewTelegram(conf.Telegram.ApiKey, conf.Telegram.ChatId, level, log)
		if err != nil {
			log.Error("telegram alerts disabled", sl.Err(err))
		} else {
			alerts = tg
			log = slog.New(logger.NewTelegramHandler(log.Handler(), alerts, level))
		}
	}

	g := guard.New()
	auditLog := audit.New(mongo, log)
	claims := claim.New(mongo, auditLog, g, log)
	redeemer := redeem.New(mongo, claims, auditLog, g, conf.Keys.ExpiryDays, log)
	pools := pool.New(mongo, g, log)

	if alerts != nil {
		redeemer.SetNotifier(alerts)
	}

	handler := core.New(pools, claims, redeemer, auditLog, conf.Platforms, log)
	handler.SetAuthService(auth.New(mongo))

	err := api.New(conf, log, handler)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("api server stopped", sl.Err(err))
	}
}

func alertLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
