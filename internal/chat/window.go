package chat

import (
	"sync"

	"talkroom/internal/entity"
	"talkroom/internal/models"
	"talkroom/internal/storage"
)

// PageSize is both the initial window size and the growth increment.
const PageSize = 15

// Window is a live, size-bounded view of one room's most recent
// messages, ordered oldest to newest. Every store notification replaces
// the whole list. Growing re-issues the subscription with a larger
// bound; the previous subscription is always torn down first so a stale
// callback can never overwrite fresher state.
type Window struct {
	store  *storage.Store
	client *Client
	roomID string

	mu   sync.Mutex
	size int
	gen  int
	sub  *storage.Subscription
	msgs []models.Message // nil until the first snapshot arrives

	updates chan []models.Message
	closed  bool
}

// OpenWindow starts a live window over roomID at the default size.
func (c *Client) OpenWindow(roomID string) (*Window, error) {
	w := &Window{
		store:   c.store,
		client:  c,
		roomID:  roomID,
		size:    PageSize,
		updates: make(chan []models.Message, 1),
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.resubscribe(); err != nil {
		return nil, err
	}
	return w, nil
}

// Grow widens the window by one page and re-subscribes.
func (w *Window) Grow() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.size += PageSize
	return w.resubscribe()
}

// resubscribe cancels the active subscription, then opens one at the
// current size. Callers hold w.mu.
func (w *Window) resubscribe() error {
	if w.sub != nil {
		w.store.Cancel(w.sub)
		w.sub = nil
	}
	w.gen++
	sub, err := w.store.RangeSubscribe("messages", "room", w.roomID, w.size)
	if err != nil {
		return err
	}
	w.sub = sub
	go w.pump(w.gen, sub)
	return nil
}

func (w *Window) pump(gen int, sub *storage.Subscription) {
	for snap := range sub.Updates() {
		msgs, err := entity.Messages(snap)
		if err != nil {
			w.client.log.Error("dropping malformed window snapshot", "room", w.roomID, "err", err)
			continue
		}
		w.mu.Lock()
		if gen != w.gen || w.closed {
			w.mu.Unlock()
			return
		}
		w.msgs = msgs
		replace(w.updates, msgs)
		w.mu.Unlock()
	}
}

// Messages returns the current window contents. A nil slice means the
// first snapshot has not arrived yet; an empty non-nil slice means the
// room has no messages.
func (w *Window) Messages() []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.msgs
}

// Updates streams the window contents after each change, latest wins.
func (w *Window) Updates() <-chan []models.Message { return w.updates }

// Size returns the current window bound.
func (w *Window) Size() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Close releases the subscription. Safe to call more than once.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.gen++
	if w.sub != nil {
		w.store.Cancel(w.sub)
		w.sub = nil
	}
	close(w.updates)
}
