package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"emboss-relay/internal/api"
	"emboss-relay/internal/config"
	"emboss-relay/internal/generation"
	"emboss-relay/internal/health"
	"emboss-relay/internal/imaging"
	"emboss-relay/internal/logging"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	healthAddr := flag.String("health-addr", cfg.HealthAddr, "gRPC health listen address, empty to disable")
	flag.Parse()

	logFile, err := logging.Setup("relay", cfg.LogDir)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}
	defer logFile.Close()

	log.Printf("starting relay addr=%s health=%s model=%s origin=%s", *addr, *healthAddr, cfg.Model, cfg.AllowedOrigin)

	client := generation.NewClient(cfg.BaseURL, cfg.APIKey, cfg.GenerationTimeout)
	relay := generation.NewRelay(client, generation.RelayOptions{
		Model:   cfg.Model,
		Quality: cfg.Quality,
		Timeout: cfg.GenerationTimeout,
	})
	imaging.Init()
	renderer := imaging.NewRenderer(imaging.RenderOptions{FetchTimeout: cfg.FetchTimeout})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           api.NewServer(relay, renderer, cfg.AllowedOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, httpServer, *healthAddr)
	// Both servers have drained, so no decode is still using the decoder state.
	imaging.Shutdown()
	if err != nil {
		log.Printf("relay stopped: %v", err)
		logFile.Close()
		os.Exit(1)
	}
	log.Printf("relay stopped")
}

// run serves HTTP (and gRPC health when configured) until ctx is cancelled
// or either server fails, then shuts both down.
func run(ctx context.Context, httpServer *http.Server, healthAddr string) error {
	g, ctx := errgroup.WithContext(ctx)

	var healthServer *health.Server
	if healthAddr != "" {
		listener, err := net.Listen("tcp", healthAddr)
		if err != nil {
			return err
		}
		healthServer = health.NewServer()
		g.Go(func() error {
			return healthServer.Serve(listener)
		})
	}

	g.Go(func() error {
		log.Printf("relay listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Printf("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if healthServer != nil {
			healthServer.Stop(shutdownCtx)
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
