package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"quill/api/internal/app"
	"quill/api/internal/config"
	"quill/api/internal/draft"
	"quill/api/internal/notify"
	"quill/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.SQLitePath)
	if err != nil {
		logrus.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db); err != nil {
		logrus.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewSQLiteStore(db)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisNotifier, err := notify.NewRedisNotifier(cfg.RedisURL)
		if err != nil {
			logrus.Fatalf("redis connection failed: %v", err)
		}
		defer redisNotifier.Close()
		notifier = redisNotifier
		logrus.Info("Broadcasting save events over Redis")
	} else {
		logrus.Info("Redis disabled, save events stay process-local")
	}

	var remoteSaver draft.RemoteSaver
	if strings.TrimSpace(cfg.RemoteSaveURL) != "" {
		remoteSaver = newWebhookSaver(cfg.RemoteSaveURL)
		logrus.Infof("Manual saves forwarded to %s", cfg.RemoteSaveURL)
	}

	service := app.New(cfg, dataStore, notifier, remoteSaver)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: event-stream connections stay open until
		// the client disconnects
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logrus.Infof("Quill API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("shutdown error: %v", err)
	}
}

// newWebhookSaver posts saved draft content to an external endpoint.
// Failures are surfaced on the save receipt, never fatal.
func newWebhookSaver(url string) draft.RemoteSaver {
	client := &http.Client{}
	return func(ctx context.Context, content string) error {
		payload, err := json.Marshal(map[string]string{"content": content})
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("remote save returned %s", resp.Status)
		}
		return nil
	}
}
