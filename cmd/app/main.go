package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade_sim/internal/app"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()
	cfg := bootstrap.Config

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Sequencer outlives ctx so the final save still goes through the loop
	seqCtx, stopSeq := context.WithCancel(context.Background())
	defer stopSeq()
	go bootstrap.Sequencer.Run(seqCtx)
	slog.InfoContext(ctx, "✅ Sequencer started")

	// 4. Restore or warm up
	restored, err := bootstrap.RestoreSession(ctx)
	if err != nil {
		slog.Error("Failed to restore session, starting fresh", slog.Any("error", err))
	}
	if !restored {
		if err := bootstrap.Warmup(ctx); err != nil {
			slog.Error("Warmup failed", slog.Any("error", err))
		}
	}

	// 5. Price Feed + Pprof (localhost only for pprof)
	var feedServer *http.Server
	if bootstrap.Hub != nil {
		feedServer = &http.Server{Addr: cfg.Feed.Addr, Handler: bootstrap.Hub.Handler()}
		go func() {
			slog.Info("📡 Price feed listening", slog.String("addr", cfg.Feed.Addr))
			if err := feedServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Feed server failed", slog.Any("error", err))
			}
		}()
	}
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Debug("Pprof server unavailable", slog.Any("error", err))
		}
	}()

	// 6. Auto Tick
	go bootstrap.AutoTick(ctx)

	// 7. Console; "quit" ends the session like Ctrl+C
	console := app.NewConsole(bootstrap, os.Stdout)
	go func() {
		if err := console.Run(ctx, os.Stdin); errors.Is(err, app.ErrQuit) {
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Trade Sim running. Type 'help' or press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if feedServer != nil {
		if err := feedServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Feed shutdown failed", slog.Any("error", err))
		}
	}
	if err := bootstrap.SaveSession(shutdownCtx); err != nil {
		slog.Error("Failed to save session", slog.Any("error", err))
	}
	stopSeq()
}
