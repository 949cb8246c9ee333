package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JAYASURYA-KK/sandguard-ai/internal/config"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/database"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/detection"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/fanout"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/handlers"
	"github.com/JAYASURYA-KK/sandguard-ai/internal/services"
)

func main() {
	httpPort := flag.String("http-port", "", "HTTP port (overrides HTTP_PORT)")
	inferenceURL := flag.String("inference-url", "", "Inference service URL (overrides INFERENCE_SERVICE_URL)")
	flag.Parse()

	cfg := config.LoadConfig()
	if *httpPort != "" {
		cfg.HTTPPort = *httpPort
	}
	if *inferenceURL != "" {
		cfg.InferenceURL = *inferenceURL
	}

	log.Println("Starting...")
	log.Printf("HTTP port: %s", cfg.HTTPPort)
	log.Printf("Inference service: %s", cfg.InferenceURL)
	log.Printf("Database: %s", cfg.DSNForLog())
	log.Printf("Environment: %s", cfg.Environment)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	db, err := database.Connect(cfg.DSN())
	if err != nil {
		log.Fatalf("Database unavailable: %v", err)
	}
	defer database.Close(db)
	store := database.NewStore(db)

	predictor, err := services.NewGRPCPredictor(cfg.InferenceURL)
	if err != nil {
		log.Printf("Inference service unavailable: %v", err)
		log.Println("Continuing with baseline severity only")
		predictor = nil
	}
	if predictor != nil {
		defer predictor.Close()
	}

	hub := fanout.NewHub()
	metrics := services.NewMetrics()

	opts := detection.Options{
		MaxWidth:       cfg.MaxImageWidth,
		Threshold:      cfg.DiffThreshold,
		AlertThreshold: cfg.AlertThreshold,
		Store:          store,
		Publisher:      hub,
		Metrics:        metrics,
	}
	if predictor != nil {
		opts.Predictor = predictor
	}
	detector := detection.New(opts)

	handler := handlers.New(cfg, store, detector, hub, predictor, metrics)

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on port %s", cfg.HTTPPort)
		log.Printf("WebSocket:  ws://localhost:%s/ws/alerts", cfg.HTTPPort)
		log.Printf("REST API:   http://localhost:%s/api/*", cfg.HTTPPort)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Println("Stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	} else {
		log.Println("HTTP server gracefully stopped")
	}

	log.Println("Closing alert subscriptions...")
	hub.Close()

	log.Println("Goodbye!")
}
