package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/inkmark/inkmark-backend/internal/db"
	"github.com/inkmark/inkmark-backend/internal/handlers"
	"github.com/inkmark/inkmark-backend/internal/linker"
	"github.com/inkmark/inkmark-backend/internal/logger"
	"github.com/inkmark/inkmark-backend/internal/middleware"
	"github.com/inkmark/inkmark-backend/internal/observability"
	"github.com/inkmark/inkmark-backend/internal/platform/gcs"
	"github.com/inkmark/inkmark-backend/internal/repos"
	"github.com/inkmark/inkmark-backend/internal/server"
	"github.com/inkmark/inkmark-backend/internal/services"
	"github.com/inkmark/inkmark-backend/internal/store"
	"github.com/inkmark/inkmark-backend/internal/worker"
)

type App struct {
	Log    *logger.Logger
	Router *gin.Engine
	Cfg    Config

	tracingShutdown func(context.Context) error
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	convStore, err := resolveConversionStore(log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	bucketService, err := gcs.NewBucketService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init bucket service: %w", err)
	}

	invoker, err := worker.NewScriptInvoker(log, worker.ScriptConfig{
		PythonPath: cfg.ConverterPython,
		ScriptPath: cfg.ConverterScript,
		WorkRoot:   cfg.WorkRoot,
		Timeout:    cfg.WorkerTimeout,
	})
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init converter invoker: %w", err)
	}

	policy := linker.ForName(cfg.LinkerPolicy)
	conversionService := services.NewConversionService(log, convStore, bucketService, invoker, policy, cfg.ConverterMethod)

	conversionHandler := handlers.NewConversionHandler(log, conversionService)
	authMiddleware := middleware.NewAuthMiddleware(log, cfg.JWTSecretKey)

	var tracingShutdown func(context.Context) error
	if cfg.TracingEnabled {
		tracingShutdown, err = observability.InitTracing(context.Background(), cfg.ServiceName)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init tracing: %w", err)
		}
	}

	routerCfg := server.RouterConfig{
		ConversionHandler: conversionHandler,
		AuthMiddleware:    authMiddleware,
		AllowOrigins:      cfg.AllowOrigins,
		TracingEnabled:    cfg.TracingEnabled,
		ServiceName:       cfg.ServiceName,
	}
	if root, ok := gcs.LocalRootOf(bucketService); ok {
		routerCfg.StaticFilesRoot = root
	}
	router := server.NewRouter(routerCfg)

	return &App{
		Log:             log,
		Router:          router,
		Cfg:             cfg,
		tracingShutdown: tracingShutdown,
	}, nil
}

func resolveConversionStore(log *logger.Logger, cfg Config) (store.ConversionStore, error) {
	switch cfg.PersistenceMode {
	case "postgres":
		pg, err := db.NewPostgresService(log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		if err := pg.AutoMigrateAll(); err != nil {
			return nil, fmt.Errorf("postgres automigrate: %w", err)
		}
		return repos.NewConversionRepo(pg.DB(), log), nil
	case "sqlite":
		sq, err := db.NewSQLiteService(log)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		if err := sq.AutoMigrateAll(); err != nil {
			return nil, fmt.Errorf("sqlite automigrate: %w", err)
		}
		return repos.NewConversionRepo(sq.DB(), log), nil
	case "jsonfile":
		return store.NewJSONFileStore(cfg.JSONStorePath, log)
	case "memory":
		log.Warn("Using in-memory persistence; conversions will not survive a restart")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("invalid PERSISTENCE_MODE=%q (allowed: postgres, sqlite, jsonfile, memory)", cfg.PersistenceMode)
	}
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.tracingShutdown != nil {
		_ = a.tracingShutdown(context.Background())
		a.tracingShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
