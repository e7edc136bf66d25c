package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"talkroom/internal/chat"
	"talkroom/internal/filestore"
	"talkroom/internal/models"
	"talkroom/internal/presence"
	"talkroom/internal/profile"
	"talkroom/internal/storage"
)

// fakeConn is an in-memory wsConnection: commands go in, events come out.
type fakeConn struct {
	in  chan ClientCommand
	out chan ServerEvent

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan ClientCommand),
		out:    make(chan ServerEvent, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	select {
	case cmd := <-c.in:
		*v.(*ClientCommand) = cmd
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	select {
	case c.out <- v.(ServerEvent):
		return nil
	case <-c.closed:
		return errors.New("connection closed")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(t *testing.T, cmd ClientCommand) {
	t.Helper()
	select {
	case c.in <- cmd:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out sending command")
	}
}

func (c *fakeConn) waitEvent(t *testing.T, cond func(ServerEvent) bool) ServerEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-c.out:
			if cond(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

type sessionEnv struct {
	store    *storage.Store
	chat     *chat.Client
	profiles *profile.Service
	conn     *fakeConn
	roomID   string

	done     chan error
	finished chan struct{}
}

func newSessionEnv(t *testing.T, uid string) *sessionEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.Open(filepath.Join(dir, "session.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	files, err := filestore.NewLocalFileStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	chatClient := chat.NewClient(store, files, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	profiles := profile.NewService(ctx, store)
	if err := profiles.Create(uid, "Alice"); err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}

	roomID, err := chatClient.CreateRoom("general", "talk", uid)
	if err != nil {
		t.Fatalf("failed to create room: %v", err)
	}

	return &sessionEnv{
		store:    store,
		chat:     chatClient,
		profiles: profiles,
		conn:     newFakeConn(),
		roomID:   roomID,
		done:     make(chan error, 1),
		finished: make(chan struct{}),
	}
}

func (e *sessionEnv) run(t *testing.T, uid string) *Session {
	t.Helper()
	session := NewSession(e.store, e.chat, e.profiles, e.conn, uid)
	go func() {
		e.done <- session.Handle(context.Background())
		close(e.finished)
	}()
	t.Cleanup(func() {
		e.conn.Close()
		select {
		case <-e.finished:
		case <-time.After(5 * time.Second):
			t.Error("session did not terminate")
		}
	})
	return session
}

func TestSession_OpenAndSend(t *testing.T) {
	e := newSessionEnv(t, "u1")
	e.run(t, "u1")

	e.conn.send(t, ClientCommand{Type: CommandOpen, RoomID: e.roomID})
	e.conn.waitEvent(t, func(ev ServerEvent) bool {
		return ev.Type == EventMessages && ev.RoomID == e.roomID && len(ev.Messages) == 0
	})

	e.conn.send(t, ClientCommand{Type: CommandSend, Text: "hello over the wire"})
	ev := e.conn.waitEvent(t, func(ev ServerEvent) bool {
		return ev.Type == EventMessages && len(ev.Messages) == 1
	})
	msg := ev.Messages[0]
	if msg.Text != "hello over the wire" {
		t.Errorf("unexpected message text: %q", msg.Text)
	}
	if msg.Author.UID != "u1" || msg.Author.Name != "Alice" {
		t.Errorf("author snapshot not attached: %+v", msg.Author)
	}
}

func TestSession_EmptySendBecomesNotice(t *testing.T) {
	e := newSessionEnv(t, "u1")
	e.run(t, "u1")

	e.conn.send(t, ClientCommand{Type: CommandOpen, RoomID: e.roomID})
	e.conn.send(t, ClientCommand{Type: CommandSend, Text: "   "})

	ev := e.conn.waitEvent(t, func(ev ServerEvent) bool { return ev.Type == EventNotice })
	if ev.Notice == "" {
		t.Error("expected a failure notice for an empty send")
	}

	// the session survives the rejected command
	e.conn.send(t, ClientCommand{Type: CommandSend, Text: "still here"})
	e.conn.waitEvent(t, func(ev ServerEvent) bool {
		return ev.Type == EventMessages && len(ev.Messages) == 1
	})
}

func TestSession_LikeNotice(t *testing.T) {
	e := newSessionEnv(t, "u1")
	e.run(t, "u1")

	e.conn.send(t, ClientCommand{Type: CommandOpen, RoomID: e.roomID})
	e.conn.send(t, ClientCommand{Type: CommandSend, Text: "like me"})
	ev := e.conn.waitEvent(t, func(ev ServerEvent) bool {
		return ev.Type == EventMessages && len(ev.Messages) == 1
	})
	msgID := ev.Messages[0].ID

	e.conn.send(t, ClientCommand{Type: CommandLike, MsgID: msgID})
	notice := e.conn.waitEvent(t, func(ev ServerEvent) bool { return ev.Type == EventNotice })
	if notice.Notice != chat.NoticeLiked {
		t.Errorf("expected %q, got %q", chat.NoticeLiked, notice.Notice)
	}

	e.conn.waitEvent(t, func(ev ServerEvent) bool {
		return ev.Type == EventMessages && len(ev.Messages) == 1 && ev.Messages[0].LikeCount == 1
	})
}

func TestSession_PresenceLifecycle(t *testing.T) {
	e := newSessionEnv(t, "u1")
	session := e.run(t, "u1")

	waitPresence(t, session, "u1", models.PresenceOnline)

	// dropping the socket fires the deferred offline write
	e.conn.Close()
	select {
	case err := <-e.done:
		if err != nil {
			t.Fatalf("session ended with error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate after socket close")
	}
	waitPresence(t, session, "u1", models.PresenceOffline)
}

func TestSession_SignOut(t *testing.T) {
	e := newSessionEnv(t, "u1")
	session := e.run(t, "u1")

	waitPresence(t, session, "u1", models.PresenceOnline)

	e.conn.send(t, ClientCommand{Type: CommandSignOut})
	select {
	case err := <-e.done:
		if err != nil {
			t.Fatalf("clean sign-out must not surface an error, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate after sign-out")
	}
	waitPresence(t, session, "u1", models.PresenceOffline)
}

func waitPresence(t *testing.T, s *Session, uid string, want models.PresenceState) {
	t.Helper()
	tracker := presence.NewTracker(s.store, "probe", uid, nil)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := tracker.Lookup(uid); ok && p.State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s to be %s", uid, want)
}
