// Package chat is the client-side core of the feed: the live message
// window, the multi-path update composer for sends and deletes, and the
// optimistic toggles for likes and admin flags.
package chat

import (
	"log/slog"

	"talkroom/internal/filestore"
	"talkroom/internal/storage"
)

type Client struct {
	store *storage.Store
	files filestore.FileStore
	log   *slog.Logger
}

func NewClient(store *storage.Store, files filestore.FileStore, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{store: store, files: files, log: log}
}

// replace swaps an undelivered item for the newer one; consumers only
// ever need the latest state.
func replace[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
