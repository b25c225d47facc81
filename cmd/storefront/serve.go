package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"storefront/internal/api"
	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/events"
	"storefront/internal/handler"
	"storefront/internal/janitor"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/middleware"
	"storefront/internal/objectstore"
	"storefront/internal/preparer"
	"storefront/internal/repository"
	"storefront/internal/session"
	"storefront/internal/submitter"
	"storefront/internal/worker"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service with its background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logging.For("server")

	if err := objectstore.EnsureDir(filepath.Dir(cfg.Database.Path)); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("init database: %w", err)
	}
	defer database.Close()
	repo := repository.New(database)
	activity := metrics.New(database)

	recorder, err := metrics.NewRecorder(nil)
	if err != nil {
		return err
	}

	backend, err := objectstore.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}
	store := objectstore.Instrument(backend, recorder)

	bus := events.NewBus(cfg.Events.Buffer, logging.For("events"))
	if len(cfg.Events.KafkaBrokers) > 0 {
		mirror, err := events.NewKafkaMirror(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, logging.For("kafka"))
		if err != nil {
			return err
		}
		defer mirror.Close()
		bus.AddSink(mirror)
	}

	popts, err := mediaOptions(cfg.Media)
	if err != nil {
		return err
	}
	prep, err := preparer.New(preparer.Config{
		Options:     popts,
		Concurrency: cfg.Media.Concurrency,
		CacheSize:   cfg.Media.CacheSize,
		Logger:      logging.For("preparer"),
		Observer:    recorder,
	})
	if err != nil {
		return err
	}

	w := worker.NewWorker(repo, store, cfg.Worker, logging.For("worker"))

	subCfg := submitter.Config{
		Store:               store,
		Bucket:              cfg.Storage.Bucket,
		OperationTimeout:    cfg.Submit.OperationTimeout,
		CompensateOnFailure: cfg.Submit.CompensateOnFailure,
		Events:              bus,
		Activity:            activity,
		Recorder:            recorder,
		Queue:               w.WakeOnEnqueue(repo),
		Logger:              logging.For("submitter"),
	}
	if cfg.API.BaseURL != "" {
		client, err := api.New(api.Options{
			BaseURL:   cfg.API.BaseURL,
			Timeout:   cfg.API.Timeout,
			RateLimit: cfg.API.RateLimit,
			RateBurst: cfg.API.RateBurst,
			Logger:    logging.For("api"),
		})
		if err != nil {
			return err
		}
		subCfg.API = client
	} else {
		log.Warn("Server: no api.base_url set; shipping and variant submissions are disabled")
	}
	sub, err := submitter.New(subCfg)
	if err != nil {
		return err
	}

	trusted, err := middleware.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return err
	}
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimit,
		Burst:             cfg.Server.RateBurst,
		TrustedProxies:    trusted,
		Logger:            logging.For("ratelimit"),
	})

	h := handler.New(handler.Deps{
		Config:    *cfg,
		Repo:      repo,
		Sessions:  session.NewRegistry(),
		Preparer:  prep,
		Submitter: sub,
		Bus:       bus,
		Activity:  activity,
		Recorder:  recorder,
		Logger:    logging.For("http"),
	})

	workCtx, cancelWork := context.WithCancel(ctx)
	w.Start(workCtx)
	defer w.Stop()
	defer cancelWork()

	dataDir := ""
	if cfg.Storage.Backend == "filesystem" {
		dataDir = cfg.Storage.DataDir
	}
	j := janitor.New(janitor.Config{
		Drafts:         repo,
		Activity:       activity,
		DataDir:        dataDir,
		Interval:       cfg.Janitor.Interval,
		DraftTTL:       cfg.Janitor.DraftTTL,
		EventRetention: cfg.Janitor.EventRetention,
		MaxAttempts:    cfg.Worker.MaxAttempts,
		Logger:         logging.For("janitor"),
	})
	j.Start(ctx)
	defer j.Stop()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Routes(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Server: listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	prep.Wait()
	return nil
}
