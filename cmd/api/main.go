package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/harentsoaR/jobboard-api/internal/cache"
	"github.com/harentsoaR/jobboard-api/internal/config"
	"github.com/harentsoaR/jobboard-api/internal/handlers"
	"github.com/harentsoaR/jobboard-api/internal/images"
	"github.com/harentsoaR/jobboard-api/internal/logger"
	"github.com/harentsoaR/jobboard-api/internal/middleware"
	"github.com/harentsoaR/jobboard-api/internal/router"
	"github.com/harentsoaR/jobboard-api/internal/services"
	"github.com/harentsoaR/jobboard-api/internal/store"
	"github.com/harentsoaR/jobboard-api/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	zlog, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer zlog.Sync()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" {
		zlog.Warn("JWT_SECRET is not set; authentication endpoints will fail")
	}

	// --- Database Connection ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := store.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			zlog.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()
	db := client.Database(cfg.MongoDatabase)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		return err
	}
	zlog.Info("connected to MongoDB", zap.String("database", cfg.MongoDatabase))

	repo := func(name string) store.Repository {
		return store.NewCollection(db, name, cfg.MongoTransactions)
	}
	repos := handlers.Repositories{
		Users:       repo(store.Users),
		Categories:  repo(store.Categories),
		Departments: repo(store.Departments),
		Locations:   repo(store.Locations),
		Levels:      repo(store.Levels),
		Jobs:        repo(store.Jobs),
	}

	// --- Initialize Services ---
	redis := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, zlog)
	defer redis.Close()
	if err := redis.Ping(ctx); err != nil {
		zlog.Warn("redis unreachable; token revocation disabled until it recovers", zap.Error(err))
	}
	revocations := services.NewTokenStore(redis)

	mailer, err := services.NewNotificationService(services.MailConfig{
		Host:        cfg.SMTPHost,
		Port:        cfg.SMTPPort,
		Username:    cfg.SMTPUsername,
		Password:    cfg.SMTPPassword,
		From:        cfg.EmailFrom,
		SiteName:    cfg.SiteName,
		Development: !cfg.IsProduction(),
	}, zlog)
	if err != nil {
		return err
	}

	deps := router.Deps{
		Log:         zlog,
		Development: !cfg.IsProduction(),
		CORSOrigins: cfg.CORSOrigins,
		Health: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
	}
	var storage images.Storage
	switch cfg.StorageDriver {
	case "s3":
		s3, err := images.NewS3(images.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return err
		}
		storage = s3
		deps.ImageURL = s3.URL
	default:
		disk := images.NewDisk(cfg.ImagesDir)
		storage = disk
		deps.ImagesDir = disk.Root()
	}

	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiresIn)
	deps.Handler = handlers.NewHandler(handlers.Deps{
		Repos:        repos,
		Storage:      storage,
		Tokens:       tokens,
		Revoker:      revocations,
		Mailer:       mailer,
		Log:          zlog,
		CookieTTL:    cfg.JWTCookieExpires,
		SecureCookie: cfg.IsProduction(),
	})
	deps.Auth = middleware.NewAuthenticator(repos.Users, tokens, revocations)
	deps.Limiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	defer deps.Limiter.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// --- Start Server ---
	stop, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelSignals()

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-stop.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
