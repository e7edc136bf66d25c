// Package presence tracks per-user liveness with disconnect-safe
// writes: a deferred offline write is registered with the store before
// every online write, so an abrupt disconnect can never leave the user
// marked online.
package presence

import (
	"context"
	"log/slog"
	"sync"

	"talkroom/internal/entity"
	"talkroom/internal/models"
	"talkroom/internal/storage"
)

type Tracker struct {
	store     *storage.Store
	sessionID string
	uid       string
	log       *slog.Logger

	mu         sync.Mutex
	cancelConn func()
	started    bool
}

func NewTracker(store *storage.Store, sessionID, uid string, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{store: store, sessionID: sessionID, uid: uid, log: log}
}

func statusPath(uid string) string { return "status/" + uid }

func offlineValue() map[string]any {
	return map[string]any{
		"state":        string(models.PresenceOffline),
		"last_changed": storage.ServerTimestamp,
	}
}

func onlineValue() map[string]any {
	return map[string]any{
		"state":        string(models.PresenceOnline),
		"last_changed": storage.ServerTimestamp,
	}
}

// Start watches the session's connectivity signal. On every transition
// to connected it first registers the deferred offline write, then
// writes the online record. The order is load-bearing: registering
// after the online write would leave a gap in which a disconnect keeps
// the user online forever.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true

	ch, cancel := t.store.ConnectivitySubscribe(t.sessionID)
	t.cancelConn = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case connected, ok := <-ch:
				if !ok {
					return
				}
				if !connected {
					continue
				}
				if err := t.store.OnDisconnect(t.sessionID, statusPath(t.uid), offlineValue()); err != nil {
					t.log.Error("failed to register deferred offline write", "uid", t.uid, "err", err)
					continue
				}
				if err := t.store.AtomicWrite(map[string]any{statusPath(t.uid): onlineValue()}); err != nil {
					t.log.Error("failed to write online presence", "uid", t.uid, "err", err)
				}
			}
		}
	}()
}

// SignOut writes the offline record itself, bypassing the deferred
// mechanism, then releases the deferred write and the connectivity
// watcher. Call before terminating the session.
func (t *Tracker) SignOut() error {
	err := t.store.AtomicWrite(map[string]any{statusPath(t.uid): offlineValue()})
	if err != nil {
		return err
	}

	t.store.CancelOnDisconnect(t.sessionID, statusPath(t.uid))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelConn != nil {
		t.cancelConn()
		t.cancelConn = nil
	}
	t.started = false
	return nil
}

// Lookup reads another user's presence. ok is false when the user has
// never connected.
func (t *Tracker) Lookup(uid string) (models.Presence, bool) {
	raw, err := t.store.Read(statusPath(uid))
	if err != nil {
		return models.Presence{}, false
	}
	return entity.Presence(raw)
}

// Watch streams another user's presence record. An unknown user yields
// a zero Presence until a record appears.
func (t *Tracker) Watch(uid string) (<-chan models.Presence, func(), error) {
	sub, err := t.store.ValueSubscribe(statusPath(uid))
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan models.Presence, 1)
	go func() {
		defer close(ch)
		for raw := range sub.Updates() {
			p, _ := entity.Presence(raw)
			replace(ch, p)
		}
	}()

	cancel := func() { t.store.CancelValue(sub) }
	return ch, cancel, nil
}

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
