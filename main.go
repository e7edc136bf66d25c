package main

import (
	"context"
	"errors"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"talkroom/internal/chat"
	"talkroom/internal/config"
	"talkroom/internal/filestore"
	"talkroom/internal/http"
	"talkroom/internal/profile"
	"talkroom/internal/storage"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	chatClient := chat.NewClient(store, files, nil)
	profiles := profile.NewService(ctx, store)

	server := http.NewServer(store, chatClient, profiles, cfg.Addr)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := server.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
