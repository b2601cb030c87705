package app

import (
	"context"
	"log/slog"

	httpapp "resumehub/internal/app/httpserver"
	"resumehub/internal/config"
	"resumehub/internal/httpapi"
	"resumehub/internal/lib/jwt"
	"resumehub/internal/lib/policy"
	"resumehub/internal/services/auth"
	"resumehub/internal/services/resume"
	"resumehub/internal/services/user"
	"resumehub/internal/storage/mongodb"
	"resumehub/internal/storage/redisledger"
	"resumehub/internal/storage/sqlite"
)

// backend is the full storage surface the services consume. Both the
// sqlite and mongodb storages satisfy it.
type backend interface {
	auth.UserSaver
	auth.UserProvider
	auth.RefreshTokenLedger
	resume.ResumeStore
	user.ProfileStore
}

type App struct {
	HTTPSrv *httpapp.App
}

func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) *App {
	var store backend
	switch cfg.Storage {
	case "sqlite":
		s, err := sqlite.New(cfg.StoragePath)
		if err != nil {
			panic(err)
		}
		store = s
	case "mongodb":
		s, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			panic(err)
		}
		store = s
	default:
		panic("unknown storage backend: " + cfg.Storage)
	}

	// The refresh ledger defaults to the primary storage; a Redis ledger
	// keeps rotation off the main database when configured.
	var ledger auth.RefreshTokenLedger = store
	if cfg.Ledger == "redis" {
		l, err := redisledger.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			panic(err)
		}
		ledger = l
	}

	issuer := jwt.NewIssuer(
		cfg.Auth.AccessSecret,
		cfg.Auth.RefreshSecret,
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
	)

	authService := auth.New(logger, store, store, ledger, issuer, cfg.Auth.GraceWindow)
	resumeService := resume.New(logger, store, policy.New(cfg.Auth.AdminEmail))
	userService := user.New(logger, store)

	router := httpapi.Router(logger, authService, authService, userService, resumeService)

	httpApp := httpapp.New(
		logger,
		router,
		cfg.HTTP.Port,
		cfg.HTTP.Timeout,
		cfg.HTTP.IdleTimeout,
		cfg.HTTP.ShutdownTimeout,
	)

	return &App{
		HTTPSrv: httpApp,
	}
}
