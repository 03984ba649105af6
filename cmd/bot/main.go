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
	"github.com/robfig/cron/v3"

	"github.com/grabtube/grabtube/internal/config"
	"github.com/grabtube/grabtube/internal/extract"
	"github.com/grabtube/grabtube/internal/handler"
	"github.com/grabtube/grabtube/internal/model/format"
	"github.com/grabtube/grabtube/internal/service/conversation"
	"github.com/grabtube/grabtube/internal/service/cookiejar"
	"github.com/grabtube/grabtube/internal/service/job"
	"github.com/grabtube/grabtube/internal/service/session"
	"github.com/grabtube/grabtube/internal/telegram"
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

	for _, dir := range []string{cfg.Storage.DownloadDir, cfg.Storage.CookiesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create directory %s: %v", dir, err)
		}
	}

	if err := extract.Install(ctx); err != nil {
		log.Fatalf("failed to provision yt-dlp: %v", err)
	}

	client, err := telegram.NewClient(cfg.Bot.Token)
	if err != nil {
		log.Fatalf("failed to initialize telegram client: %v", err)
	}
	log.Printf("authenticated as @%s", client.Username())

	if err := client.RegisterWebhook(cfg.Bot.WebhookURL()); err != nil {
		log.Fatalf("failed to register webhook: %v", err)
	}
	log.Printf("webhook registered for %s", cfg.Bot.PublicDomain)

	// Assemble the pipeline: catalog and config are immutable after this
	// point and shared by reference.
	catalog := format.NewCatalog(format.Seed())
	sessions := session.NewService()
	jar := cookiejar.NewJar(cfg.Storage.CookiesDir)
	runner := job.NewRunner(extract.NewService(), client, cfg.Storage.DownloadDir, cfg.Bot.FileLimitMB)
	dispatcher := job.NewDispatcher(runner)
	conv := conversation.NewService(sessions, jar, client, catalog, dispatcher, cfg.Bot.FileLimitMB)

	startSweeps(cfg.Storage, jar, sessions)

	router := handler.NewRouter(cfg.Bot.Token, conv)
	startServer(ctx, cfg.Server, router)
}

// startSweeps schedules the maintenance passes: expired cookie files
// once a day, stale sessions every ten minutes.
func startSweeps(storage config.StorageConfig, jar *cookiejar.Jar, sessions *session.Service) {
	c := cron.New()
	if _, err := c.AddFunc("@daily", func() {
		removed, err := jar.Sweep(storage.CookieTTL)
		if err != nil {
			log.Printf("[sweep] cookie sweep failed: %v", err)
			return
		}
		log.Printf("[sweep] removed %d expired cookie files", removed)
	}); err != nil {
		log.Fatalf("failed to schedule cookie sweep: %v", err)
	}
	if _, err := c.AddFunc("@every 10m", func() {
		if removed := sessions.SweepStale(storage.SessionTTL); removed > 0 {
			log.Printf("[sweep] evicted %d stale sessions", removed)
		}
	}); err != nil {
		log.Fatalf("failed to schedule session sweep: %v", err)
	}
	c.Start()
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("grabtube bot listening on %s", addr)
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
