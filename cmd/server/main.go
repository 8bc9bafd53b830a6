package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/medconnect/rtcore/internal/adapter/driven/auth"
	"github.com/medconnect/rtcore/internal/adapter/driven/gateway/ws"
	"github.com/medconnect/rtcore/internal/adapter/driven/persistence/sqlite"
	handler "github.com/medconnect/rtcore/internal/adapter/driving/http"
	"github.com/medconnect/rtcore/internal/core/service"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()

	addr := envOr("RTCORE_ADDR", ":8080")
	dbPath := envOr("RTCORE_DB", "rtcore.db")
	secret := envOr("RTCORE_TOKEN_SECRET", "")
	if secret == "" {
		l.Fatal().Msg("RTCORE_TOKEN_SECRET is required")
	}

	db, err := sqlite.Open(dbPath)
	if err != nil {
		l.Fatal().Err(err).Str("path", dbPath).Msg("Failed to open database")
	}
	defer db.Close()

	clk := clock.New()
	hub := ws.NewHub()
	verifier := auth.NewVerifier([]byte(secret), clk)

	presence := service.NewPresence(hub, clk, service.DefaultOfflineGrace)
	chatService := service.NewChat(sqlite.NewMessageRepository(db), hub, presence, clk)
	callService := service.NewCall(sqlite.NewCallRepository(db), hub, presence, clk)
	relayService := service.NewRelay(hub)

	// A party losing its last connection must not leave calls dangling.
	presence.OnLastHandleGone(callService.HandleDisconnect)

	h := handler.NewHandler(chatService, callService, relayService, presence, hub, verifier)

	srv := &http.Server{
		Addr:    addr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	hub.Stop()
	l.Info().Msg("Server exited")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
