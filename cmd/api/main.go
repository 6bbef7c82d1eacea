package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CMS_Blog/internal/config"
	"CMS_Blog/internal/handler"
	"CMS_Blog/internal/metrics"
	"CMS_Blog/internal/middleware"
	"CMS_Blog/internal/pkg"
	"CMS_Blog/internal/repository/mysql"
	"CMS_Blog/internal/repository/redis"
	"CMS_Blog/internal/router"
	"CMS_Blog/internal/service"
	"CMS_Blog/internal/storage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := pkg.NewLogger(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infow("Starting CMS server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	m, metricsHandler, err := metrics.Setup("cms-blog")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	db, err := mysql.InitDB(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatalw("Failed to open database", "error", err)
	}
	// 自动建表
	if err := mysql.Migrate(db); err != nil {
		logger.Fatalw("Failed to migrate database", "error", err)
	}

	rdb, err := redis.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatalw("Failed to connect redis", "error", err)
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	blobs, err := newGateway(ctx, cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to setup blob storage", "error", err)
	}

	issuer := pkg.NewTokenIssuer(cfg.Session.JWTSecret, cfg.Session.TokenTTL)
	userSvc, err := service.NewUserService(
		mysql.NewUserRepository(db),
		redis.NewUserRepository(rdb, cfg.Session.TokenTTL),
		issuer,
		logger,
		service.WithUserMetrics(m),
	)
	if err != nil {
		logger.Fatalw("Failed to create user service", "error", err)
	}

	// 未配置客户端时只开放本地登录，必须传无类型 nil
	var exchanger service.CodeExchanger
	if cfg.OAuthEnabled() {
		exchanger = service.NewOAuthConfig(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, cfg.OAuth.Authority, cfg.RedirectURL(), cfg.OAuth.Scopes)
		logger.Infow("External login enabled", "authority", cfg.OAuth.Authority, "redirect_url", cfg.RedirectURL())
	}
	authSvc := service.NewAuthService(
		exchanger,
		redis.NewStateRepository(rdb),
		mysql.NewUserRepository(db),
		service.AuthConfig{ExternalAccount: cfg.OAuth.ExternalAccount, StateTTL: cfg.OAuth.StateTTL},
		logger,
		m,
	)

	postOpts := []service.PostOption{service.WithPostMetrics(m)}
	producer, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
	if err != nil {
		logger.Fatalw("Failed to create kafka producer", "error", err)
	}
	if producer != nil {
		defer producer.Close()
		postOpts = append(postOpts, service.WithPublisher(producer))
		logger.Infow("Post events enabled", "topic", cfg.Kafka.Topic)
	}
	postSvc := service.NewPostService(mysql.NewPostRepository(db), blobs, logger, postOpts...)

	sessions := middleware.NewSessionManager(cfg.Session.Secret, cfg.IsProd())
	// 模板里拼图片地址用的前缀
	imageSource := blobs.URL("")

	r := router.InitRouter(router.Deps{
		User:           handler.NewUserHandler(userSvc, authSvc, sessions, logger),
		Post:           handler.NewPostHandler(postSvc, sessions, logger, imageSource),
		Sessions:       sessions,
		Resolver:       userSvc,
		Logger:         logger,
		Metrics:        m,
		MetricsHandler: metricsHandler,
		RedirectPath:   cfg.OAuth.RedirectPath,
	})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("HTTP server starting", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("HTTP server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infow("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorw("Server forced to shutdown", "error", err)
	}

	logger.Infow("Server exited")
}

func newGateway(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (storage.Gateway, error) {
	if cfg.Blob.Backend == "memory" {
		logger.Warnw("Using in-memory blob storage, images are lost on restart")
		return storage.NewMemoryGateway(cfg.BlobEndpoint() + cfg.Blob.Container + "/"), nil
	}

	g, err := storage.NewAzureGateway(storage.AzureConfig{
		Account:    cfg.Blob.Account,
		StorageKey: cfg.Blob.StorageKey,
		Container:  cfg.Blob.Container,
		ServiceURL: cfg.BlobEndpoint(),
	})
	if err != nil {
		return nil, err
	}
	if cfg.IsDev() {
		if err := g.EnsureContainer(ctx); err != nil {
			return nil, err
		}
	}
	return g, nil
}
