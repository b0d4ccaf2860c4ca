package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"speedhockey/internal/codec"
	"speedhockey/internal/config"
	"speedhockey/internal/hockey"
	"speedhockey/internal/netwrk"
	"speedhockey/internal/physics"
)

func main() {
	path := ""
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if err := config.LoadConfig(path); err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	slog.SetLogLoggerLevel(config.Config.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Config); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Configuration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	defaultCodec, err := codec.ByName(cfg.Codec)
	if err != nil {
		return err
	}

	hc := cfg.Hockey()
	engine := hockey.NewEngine(hc, physics.NewSpace(hc.Arena.Width, hc.Arena.Height))
	srv := netwrk.NewServer(ctx, engine, netwrk.Options{
		Codec:          defaultCodec,
		AllowedOrigins: cfg.AllowedOrigins(),
		SendQueueSize:  cfg.SendQueueSize,
		InputRateLimit: cfg.InputRateLimit,
		ReadLimit:      cfg.ReadLimit,
		WriteTimeout:   cfg.WriteTimeout(),
	})

	listener, err := net.Listen("tcp", cfg.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Address, err)
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(ctx) }()

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()

	slog.Info("speedhockey server listening",
		slog.String("address", listener.Addr().String()),
		slog.String("codec", defaultCodec.Name()),
		slog.String("bounds", string(hc.Bounds)),
		slog.Duration("tick", hc.TickInterval))

	var result error
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", slog.Any("error", err))
	}

	cancel()
	srv.Wait()
	<-engineDone
	return result
}
