package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/yakan-hub/hukuwarai-hontai/internal/auth"
	"github.com/yakan-hub/hukuwarai-hontai/internal/catalog"
	"github.com/yakan-hub/hukuwarai-hontai/internal/gateway"
	"github.com/yakan-hub/hukuwarai-hontai/internal/lobby"
	"github.com/yakan-hub/hukuwarai-hontai/internal/store"
)

func serve(ctx context.Context, cfg *Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authService, authMode, err := auth.NewServiceFromEnv()
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	defer authService.Close()

	st, storeMode, err := store.NewFromEnv()
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer st.Close()

	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := st.SeedTemplates(seedCtx, catalog.Templates()); err != nil {
		cancel()
		return fmt.Errorf("seed templates: %w", err)
	}
	cancel()

	lby := lobby.New(st, cfg.gameConfig())
	defer lby.Close()
	gw := gateway.New(lby, authService)

	router := httprouter.New()
	gateway.NewAPI(lby, authService, cfg.publicBaseURL).RegisterRoutes(router)
	auth.NewHTTPHandler(authService).RegisterRoutes(router)
	router.HandlerFunc(http.MethodGet, "/ws", gw.HandleWebSocket)
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.bind, cfg.port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Server] Auth mode: %s", authMode)
		log.Printf("[Server] Store mode: %s", storeMode)
		log.Printf("[Server] Listening on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Printf("[Server] Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
