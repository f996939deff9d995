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

	"github.com/joho/godotenv"

	"github.com/zhouzirui/smolvqa/backend/internal/config"
	"github.com/zhouzirui/smolvqa/backend/internal/handler"
	"github.com/zhouzirui/smolvqa/backend/internal/model/catalog"
	"github.com/zhouzirui/smolvqa/backend/internal/service/ai"
	"github.com/zhouzirui/smolvqa/backend/internal/service/vqa"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	tiers := catalog.NewMemoryStore(catalog.Seed())

	// Initialize the inference service and the session store on top of it.
	var aiSvc *ai.Service
	var store *vqa.Store
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize inference service: %v", err)
			log.Println("continuing without VQA functionality - check the ARK credential environment variables")
		} else {
			log.Printf("inference service initialized, model=%s device=%s", cfg.AI.Model, cfg.AI.Device)
		}
	} else {
		log.Println("model credentials not configured, VQA endpoints will answer 503")
	}

	if aiSvc != nil {
		store = vqa.NewStore(aiSvc, vqa.Config{
			TTL:         cfg.Session.TTL,
			MaxSessions: cfg.Session.MaxSessions,
		})
		store.StartReaper(ctx, cfg.Session.ReapInterval)
		log.Printf("session store ready, ttl=%s reap=%s max=%d", cfg.Session.TTL, cfg.Session.ReapInterval, cfg.Session.MaxSessions)
	}

	router := handler.NewRouter(store, aiSvc, tiers)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("SmolVQA backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
