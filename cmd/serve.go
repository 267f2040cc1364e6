package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"academic-blog-api/auth"
	"academic-blog-api/cache"
	"academic-blog-api/config"
	"academic-blog-api/events"
	"academic-blog-api/handlers"
	"academic-blog-api/migrations"
	"academic-blog-api/repository"
	"academic-blog-api/search"
	"academic-blog-api/service"
)

func NewServeCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{envFileFlag: newEnvFileFlag()}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API backed by PostgreSQL.

Redis caching, Elasticsearch search and NATS events are enabled when
REDIS_ADDR, ES_ADDR and NATS_URL are set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags, config.KeyDatabaseURL, config.KeyJWTSecret)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("db connected", "max_conns", cfg.DBMaxConns)

	if cfg.AutoMigrate {
		m, conn, err := migrations.Connect(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		err = m.MigrateUp(ctx)
		conn.Close()
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	repo := repository.NewPostRepo(pool)
	opts := []service.Option{service.WithLogger(logger)}

	var inv events.Invalidator
	if cfg.RedisAddr != "" {
		rc := cache.New(cfg.RedisAddr, cfg.RedisDB, cfg.CacheTTLSeconds)
		defer rc.Close()
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, reads go to the database until it recovers", "addr", cfg.RedisAddr, "err", err)
		}
		opts = append(opts, service.WithCache(rc))
		inv = rc
	}

	if cfg.ESAddr != "" {
		es, err := search.New(cfg.ESAddr, cfg.ESIndex)
		if err != nil {
			return fmt.Errorf("es init: %w", err)
		}
		if err := es.EnsureIndex(ctx); err != nil {
			logger.Warn("search index not ready", "index", cfg.ESIndex, "err", err)
		}
		opts = append(opts, service.WithIndex(es))
	}

	if cfg.NATSURL != "" {
		pub, err := events.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn("nats unavailable, post events disabled", "url", cfg.NATSURL, "err", err)
		} else {
			defer pub.Close()
			opts = append(opts, service.WithPublisher(pub))
			if _, err := pub.Subscribe(events.Listener(ctx, logger, inv)); err != nil {
				logger.Warn("post event listener not started", "err", err)
			}
		}
	}

	gin.SetMode(gin.ReleaseMode)
	svc := service.New(repo, opts...)
	router := handlers.New(svc, repo, logger).Router(auth.NewTokens(cfg.JWTSecret))

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}).Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
