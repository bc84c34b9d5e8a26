package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"

	"github.com/insyncby/insync/pkg/history"
	"github.com/insyncby/insync/pkg/insync"
	"github.com/insyncby/insync/pkg/keystore"
	"github.com/insyncby/insync/pkg/slogx"
)

const buildVersion = "v0.1.0"

func main() {
	cfg := history.LoadConfig()

	logger := slogx.New(slogx.Config{
		Service: "insync-history",
		Version: buildVersion,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(context.Background(), cfg, logger); err != nil {
		if errors.Is(err, insync.ErrAuthorizationRequired) {
			log.Fatal("no refresh token on record: run interactive authorization first")
		}
		log.Fatalf("history reload failed: %v", err)
	}
}

func run(ctx context.Context, cfg history.Config, logger *slog.Logger) error {
	keystorePath := os.Getenv("INSYNC_KEYSTORE")
	if keystorePath == "" {
		keystorePath = "insync.db"
	}
	keys, err := keystore.Open(keystorePath)
	if err != nil {
		return err
	}
	defer keys.Close()

	profile := insync.ProfileV10()
	if os.Getenv("INSYNC_PROFILE") == "v5" {
		profile = insync.ProfileV5()
	}

	client, err := insync.New(ctx, insync.Config{
		Profile: profile,
		Store:   keys,
		Locale:  os.Getenv("INSYNC_LOCALE"),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if client.SessionID() == "" {
			return
		}
		if err := client.Logout(ctx); err != nil {
			logger.Warn("logout failed", "error", err)
		}
	}()

	store, err := history.OpenStore(cfg.DatabaseFile)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := history.NewReconciler(client, store, cfg, logger).Reload(ctx)
	if err != nil {
		return err
	}
	logger.Info("reload complete", "transactions", n)
	return nil
}
