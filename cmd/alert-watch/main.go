package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hmori/go-civic-response/internal/feed"
	"github.com/hmori/go-civic-response/internal/logging"
)

// alert-watch signs in, loads the evacuation alert feed and prints
// alerts as they arrive. Useful for poking at a running server.
func main() {
	_ = godotenv.Load()
	logging.Setup(os.Getenv("LOG_LEVEL"))

	base := os.Getenv("API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	email := os.Getenv("API_EMAIL")
	password := os.Getenv("API_PASSWORD")
	if email == "" || password == "" {
		logging.Fatalf("API_EMAIL and API_PASSWORD are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := feed.NewHTTPBackend(base)
	loginCtx, loginCancel := context.WithTimeout(ctx, 10*time.Second)
	defer loginCancel()
	if err := backend.Login(loginCtx, email, password); err != nil {
		logging.Fatalf("Login failed: %v", err)
	}

	f := feed.New(backend)
	if err := f.Load(ctx); err != nil {
		logging.Fatalf("Failed to load alert feed: %v", err)
	}

	for _, item := range f.Items() {
		printAlert(item)
	}

	if err := f.Start(ctx); err != nil {
		logging.Fatalf("Failed to start live subscription: %v", err)
	}
	defer f.Close()

	slog.Info("watching for alerts", "server", base)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	seen := len(f.Items())
	for {
		select {
		case <-quit:
			slog.Info("stopping")
			return
		case <-ticker.C:
			items := f.Items()
			for i := len(items) - seen - 1; i >= 0; i-- {
				printAlert(items[i])
			}
			seen = len(items)
		}
	}
}

func printAlert(item feed.EvacuationAlert) {
	status := item.Status.String()
	if item.Responded() {
		status = fmt.Sprintf("%s (%s)", status, item.Response)
	}
	fmt.Printf("[%s] %s | %s [%s]\n", item.Severity, item.Title, item.Location, status)
}
