package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pigeonchat/pigeon/internal/auth"
	"github.com/pigeonchat/pigeon/internal/chat"
	"github.com/pigeonchat/pigeon/internal/config"
	"github.com/pigeonchat/pigeon/internal/conversation"
	"github.com/pigeonchat/pigeon/internal/httpapi"
	"github.com/pigeonchat/pigeon/internal/imagestore"
	"github.com/pigeonchat/pigeon/internal/presence"
	"github.com/pigeonchat/pigeon/internal/storage"
	"github.com/pigeonchat/pigeon/internal/user"
	"github.com/pigeonchat/pigeon/internal/ws"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := run(log); err != nil {
		log.Error("server failed", "error", err)
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config invalid: %w", err)
	}

	storeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := storage.NewPostgresStore(storeCtx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, store, log)
}

// serve wires the services and runs the HTTP server until ctx is cancelled.
// It owns the store from here on and closes it on the way out.
func serve(ctx context.Context, cfg config.Config, store storage.Store, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Migrate(migrateCtx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	var cache conversation.Cache
	if cfg.RedisAddr != "" {
		redisCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		redisCache, err := conversation.ConnectRedis(redisCtx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cache = redisCache
	} else {
		log.Warn("no redis addr configured, conversation caching disabled")
	}

	var images imagestore.Store = imagestore.Noop{}
	if cfg.ImageServiceURL != "" {
		images = imagestore.NewClient(cfg.ImageServiceURL)
	}

	registry := presence.NewRegistry()
	hub := ws.NewHub(registry, log)
	go hub.Run(ctx)

	userService := user.NewService(store.Users())
	index := conversation.NewIndex(store.Conversations(), store.Users(), cache, log)
	chatService := chat.NewService(store.Messages(), userService, hub, images, index, log)
	authService := auth.NewService(userService)
	api := httpapi.NewHandler(authService, userService, chatService, index, images, hub, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/ws", ws.WithAuthValidator(http.HandlerFunc(hub.HandleWS), authService))
	api.Register(mux)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSCertPath != "" && cfg.TLSKeyPath != "" {
			log.Info("listening with TLS", "addr", cfg.ListenAddr)
			errCh <- srv.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
			return
		}

		log.Info("listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	var err error
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err = <-errCh
	case err = <-errCh:
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
