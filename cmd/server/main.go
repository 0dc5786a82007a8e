package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pv/callpanel-go/internal/api"
	"github.com/pv/callpanel-go/internal/config"
	"github.com/pv/callpanel-go/internal/dashboard"
	"github.com/pv/callpanel-go/internal/gateway"
	"github.com/pv/callpanel-go/internal/logger"
	"github.com/pv/callpanel-go/internal/model"
	"github.com/pv/callpanel-go/internal/remote"
	"github.com/pv/callpanel-go/internal/storage"
	"github.com/pv/callpanel-go/ui"
)

func main() {
	cfg := config.Parse()
	logger.Init(cfg.LogFormat, logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create document store
	var store storage.DocumentStore
	var err error

	switch {
	case cfg.Offline:
		store = nil
		log.Println("Persistence disabled, running in offline mode")
	case cfg.Store == config.StoreSQLite:
		store, err = storage.NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("Failed to create SQLite store: %v", err)
		}
		log.Printf("Using SQLite store: %s", cfg.SQLitePath)
	case cfg.Store == config.StoreRemote:
		client := remote.NewClient(cfg.RemoteURL, logger.Log)
		if err := client.Connect(ctx); err != nil {
			log.Printf("Document gateway unavailable, retrying in background: %v", err)
		}
		store = client
		log.Printf("Using remote document gateway: %s", cfg.RemoteURL)
	default:
		store = storage.NewMemoryStore()
		log.Println("Using in-memory store")
	}

	// Create gateway, panel and API server
	gw := gateway.New(store, logger.Log)
	panel := dashboard.New(gw, logger.Log)

	hub := api.NewSSEHub()
	handlers := api.NewHandlers(panel, hub)

	server := api.NewServer(handlers, hub, ui.Content)

	// Initialize the gateway session before serving
	session := panel.Start(ctx)
	log.Printf("Session: %s (offline=%v)", session.ID, session.Offline)

	// Push displayed-dataset changes to SSE clients
	panel.SetChangeCallback(func(model.ChartDataset) {
		hub.BroadcastChart("duration", panel.DurationView())
	})

	// Push connection status changes to SSE clients
	gw.SetStatusCallback(func(status gateway.Status) {
		hub.BroadcastStatus(status)
	})

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server,
	}

	go func() {
		log.Printf("Starting server on http://localhost%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()

	if err := httpServer.Shutdown(context.Background()); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	if err := gw.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}

	log.Println("Server stopped")
}
