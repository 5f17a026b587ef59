// Command migrate copies the previous admin panel's SQL inventory
// (platforms, credentials, keys with their redemption lists) into the
// document store. Safe to re-run against an empty target database;
// it does not deduplicate.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"credpool/internal/config"
	"credpool/internal/database"
	"credpool/internal/legacy"
	"credpool/lib/sl"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := slog.New(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
	).With(sl.Module("migrate"))

	source, err := legacy.NewSqlClient(conf)
	if err != nil {
		log.Error("legacy database", sl.Err(err))
		os.Exit(1)
	}
	defer source.Close()

	target := database.NewMongoClient(conf)
	ctx := context.Background()

	platforms, err := source.Platforms()
	if err != nil {
		log.Error("read platforms", sl.Err(err))
		os.Exit(1)
	}
	log.Info("migration started", slog.Int("platforms", len(platforms)))

	var totalCreds, totalKeys int
	for _, platform := range platforms {
		creds, err := source.Credentials(platform)
		if err != nil {
			log.Error("read credentials", slog.String("platform", platform), sl.Err(err))
			os.Exit(1)
		}
		if len(creds) > 0 {
			if err = target.InsertCredentials(ctx, creds); err != nil {
				log.Error("write credentials", slog.String("platform", platform), sl.Err(err))
				os.Exit(1)
			}
		}

		keys, err := source.Keys(platform)
		if err != nil {
			log.Error("read keys", slog.String("platform", platform), sl.Err(err))
			os.Exit(1)
		}
		for _, key := range keys {
			if err = target.InsertKey(ctx, key); err != nil {
				log.Error("write key", slog.String("key_code", key.KeyCode), sl.Err(err))
				os.Exit(1)
			}
		}

		log.Info("platform migrated",
			slog.String("platform", platform),
			slog.Int("credentials", len(creds)),
			slog.Int("keys", len(keys)),
		)
		totalCreds += len(creds)
		totalKeys += len(keys)
	}

	log.Info("migration complete",
		slog.Int("credentials", totalCreds),
		slog.Int("keys", totalKeys),
	)
}
