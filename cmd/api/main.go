package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "lender_directory/internal/adapters/http_server"
	"lender_directory/internal/adapters/observability"
	"lender_directory/internal/app"
	"lender_directory/internal/bootstrap"
	"lender_directory/internal/domain"
	"lender_directory/internal/shared"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	observability.Serve()

	backend, err := bootstrap.Store(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("record store init failed")
	}
	defer backend.Close()
	store := backend.Store
	blobs, err := bootstrap.Blobs(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("blob store init failed")
	}
	cache := bootstrap.Cache(ctx, cfg)
	rep := observability.DefaultReporter()

	lenders := app.NewLenderRepository(store, blobs, rep, app.RepoConfig{
		InterestTreatments: cfg.InterestTreatments,
		FetchConcurrency:   cfg.FetchConcurrency,
	})
	if list, err := lenders.ListAll(ctx); err != nil {
		// keep serving; POST /v1/lenders/refresh retries the load
		log.Error().Err(err).Msg("initial lender load failed")
	} else {
		log.Info().Int("lenders", len(list)).Msg("lenders loaded")
	}

	users := app.NewUserService(store, nil, nil, rep)
	if cfg.BootstrapAdmin != "" {
		_, err := users.Add(ctx, cfg.BootstrapAdmin, cfg.BootstrapAdminPass, true)
		switch {
		case err == nil:
			log.Info().Str("user", cfg.BootstrapAdmin).Msg("bootstrap admin created")
		case errors.Is(err, domain.ErrConstraint):
		default:
			log.Error().Err(err).Msg("bootstrap admin not created")
		}
	}
	sessions := app.NewSessionService(users, app.NewFavouriteSessions(store), cache, cfg.SessionTTL)

	// http
	srv := server.New(cfg.HTTPTimeout)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Lenders:  lenders,
		Users:    users,
		Sessions: sessions,
		Ref: server.Reference{
			LoanTypes:          domain.AllLoanTypes,
			Locations:          cfg.Locations,
			InterestTreatments: cfg.InterestTreatments,
		},
		Ready: backend.Ready,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Str("blobs", cfg.BlobDriver).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}
