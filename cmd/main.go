package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/lmslocal/lms-server/cache"
	"github.com/lmslocal/lms-server/config"
	"github.com/lmslocal/lms-server/db"
	"github.com/lmslocal/lms-server/handlers"
	"github.com/lmslocal/lms-server/live"
	"github.com/lmslocal/lms-server/middleware"
	"github.com/lmslocal/lms-server/notify"
	"github.com/lmslocal/lms-server/repositories"
	"github.com/lmslocal/lms-server/routes"
	"github.com/lmslocal/lms-server/services"
	"github.com/lmslocal/lms-server/storage"
)

// @title LMSLocal API
// @version 1.0
// @description Last Man Standing football prediction competitions.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.String("environment", cfg.Environment))

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			AttachStacktrace: true,
		}); err != nil {
			logger.Error("failed to initialize sentry", slog.Any("error", err))
		} else {
			defer sentry.Flush(2 * time.Second)
			logger.Info("sentry error reporting enabled")
		}
	}

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(dbConn); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStartup()

	standingsCache, err := cache.New(startupCtx, cfg.RedisURL)
	if err != nil {
		// Standings are rebuilt from Postgres when the cache is unavailable.
		logger.Warn("redis unavailable, standings cache disabled", slog.Any("error", err))
		standingsCache = nil
	} else if standingsCache != nil {
		defer standingsCache.Close()
		logger.Info("standings cache connected")
	}

	var uploader storage.FileUploader
	var uploads *handlers.UploadsHandler
	if cfg.R2Enabled() {
		uploader, err = storage.NewR2Uploader(startupCtx, storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicBaseURL:   cfg.R2PublicBaseURL,
		})
		if err != nil {
			logger.Error("failed to initialize R2 uploader", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("R2 logo storage enabled", slog.String("bucket", cfg.R2BucketName))
	} else {
		memory := storage.NewMemoryUploader("/uploads")
		uploader = memory
		uploads = handlers.NewUploadsHandler(memory)
		logger.Warn("R2 not configured, logos are kept in memory and served from /uploads")
	}

	hub := live.NewHub(logger)
	go hub.Run()
	defer hub.Stop()
	logger.Info("live standings hub started")

	// Repositories
	txRunner := repositories.NewPostgresTxRunner(dbConn)
	userRepo := repositories.NewPostgresUserRepository(dbConn)
	competitionRepo := repositories.NewPostgresCompetitionRepository(dbConn)
	competitionUserRepo := repositories.NewPostgresCompetitionUserRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	playerRepo := repositories.NewPostgresPlayerRepository(dbConn)
	roundRepo := repositories.NewPostgresRoundRepository(dbConn)
	fixtureRepo := repositories.NewPostgresFixtureRepository(dbConn)
	pickRepo := repositories.NewPostgresPickRepository(dbConn)
	deviceRepo := repositories.NewPostgresDeviceRepository(dbConn)

	dispatcher := newDispatcher(cfg, userRepo, deviceRepo, logger)
	go dispatcher.Run()

	// Services
	permissionService := services.NewPermissionService(competitionRepo, competitionUserRepo, playerRepo, logger)
	var cacheBackend services.StandingsCache
	if standingsCache != nil {
		cacheBackend = standingsCache
	}
	standingsService := services.NewStandingsService(competitionRepo, roundRepo, fixtureRepo, playerRepo, pickRepo, permissionService, cacheBackend, hub, logger)
	authService := services.NewAuthService(userRepo, dispatcher, cfg.PublicURL, logger)
	competitionService := services.NewCompetitionService(txRunner, competitionRepo, roundRepo, playerRepo, teamRepo, permissionService, standingsService, uploader, logger)
	roundService := services.NewRoundService(txRunner, competitionRepo, roundRepo, fixtureRepo, pickRepo, playerRepo, teamRepo, permissionService, standingsService, logger)
	pickService := services.NewPickService(txRunner, competitionRepo, roundRepo, fixtureRepo, playerRepo, pickRepo, teamRepo, permissionService, standingsService, logger)
	resultService := services.NewResultService(txRunner, competitionRepo, roundRepo, fixtureRepo, playerRepo, pickRepo, permissionService, standingsService, dispatcher, cfg.PublicURL, logger)
	deviceService := services.NewDeviceService(deviceRepo)
	reminderService := services.NewReminderService(competitionRepo, roundRepo, pickRepo, dispatcher, cfg.ReminderWindow, cfg.PublicURL, logger)

	scheduler, err := services.StartReminderScheduler(reminderService, cfg.ReminderInterval, logger)
	if err != nil {
		logger.Error("failed to start reminder scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("pick reminder scheduler started",
		slog.Duration("interval", cfg.ReminderInterval),
		slog.Duration("window", cfg.ReminderWindow))

	apiLimiter := middleware.APIRateLimiter()
	authLimiter := middleware.AuthRateLimiter()
	stopCleanup := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				apiLimiter.Cleanup(3 * time.Minute)
				authLimiter.Cleanup(3 * time.Minute)
			case <-stopCleanup:
				return
			}
		}
	}()
	defer close(stopCleanup)

	router := routes.SetupRoutes(routes.Handlers{
		Health:      handlers.NewHealthHandler(dbConn),
		Auth:        handlers.NewAuthHandler(authService, cfg.JWTSecretKey, cfg.JWTTTL),
		Competition: handlers.NewCompetitionHandler(competitionService, permissionService, standingsService),
		Round:       handlers.NewRoundHandler(roundService, pickService, resultService),
		Device:      handlers.NewDeviceHandler(deviceService),
		WebSocket:   handlers.NewWebSocketHandler(hub, permissionService, cfg.CORSAllowedOrigins, logger),
		Uploads:     uploads,
	}, routes.Options{
		JWTSecret:      cfg.JWTSecretKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		APILimiter:     apiLimiter,
		AuthLimiter:    authLimiter,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		logger.Info("shutting down server", slog.Duration("timeout", 15*time.Second))
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		} else {
			logger.Info("server shutdown complete")
		}

		if err := scheduler.Shutdown(); err != nil {
			logger.Error("failed to stop reminder scheduler", slog.Any("error", err))
		}
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			logger.Warn("notification queue not fully drained", slog.Any("error", err))
		}
	}
	logger.Info("application exited")
}

// newDispatcher picks the configured email and push transports. Channels
// without configuration are skipped.
func newDispatcher(cfg *config.Config, users notify.UserDirectory, devices notify.DeviceDirectory, logger *slog.Logger) *notify.Dispatcher {
	var mailer notify.Mailer
	switch {
	case cfg.SendgridEnabled():
		mailer = notify.NewSendgridMailer(cfg.SendgridAPIKey, cfg.EmailFromName, cfg.EmailFrom)
		logger.Info("email via sendgrid")
	case cfg.SMTPEnabled():
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.EmailFrom,
		})
		logger.Info("email via smtp", slog.String("host", cfg.SMTPHost))
	default:
		logger.Warn("no email transport configured, emails are not sent")
	}

	var pusher notify.PlatformPusher
	if cfg.APNSEnabled() {
		apns, err := notify.NewAPNSPusher(notify.APNSConfig{
			KeyPath:    cfg.APNSKeyPath,
			KeyID:      cfg.APNSKeyID,
			TeamID:     cfg.APNSTeamID,
			Topic:      cfg.APNSTopic,
			Production: cfg.APNSProduction,
		})
		if err != nil {
			logger.Error("failed to initialize APNs, iOS push disabled", slog.Any("error", err))
		} else {
			pusher.IOS = apns
		}
	}
	if cfg.WebPushEnabled() {
		pusher.Web = notify.NewWebPusher(notify.WebPushConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		})
	}

	renderer := notify.NewRenderer("LMSLocal", cfg.PublicURL)
	return notify.NewDispatcher(notify.DispatcherConfig{}, users, devices, renderer, mailer, pusher, logger)
}
