package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"talkroom/internal/chat"
	"talkroom/internal/filestore"
	"talkroom/internal/profile"
	"talkroom/internal/storage"
	"talkroom/internal/ws"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not become healthy")
}

func readEvent(t *testing.T, conn *websocket.Conn, cond func(ws.ServerEvent) bool) ws.ServerEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var ev ws.ServerEvent
		require.NoError(t, conn.ReadJSON(&ev))
		if cond(ev) {
			return ev
		}
	}
}

func TestServerEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dbFile := filepath.Join(dir, "talkroom.db")
	port := freePort(t)

	t.Setenv("TALKROOM_DB", dbFile)
	t.Setenv("ADDR", fmt.Sprintf("127.0.0.1:%d", port))
	t.Setenv("UPLOADS_PATH", filepath.Join(dir, "uploads"))

	// seed a profile and a room before the server takes the db file
	roomID := func() string {
		store, err := storage.Open(dbFile)
		require.NoError(t, err)
		defer func() { require.NoError(t, store.Close()) }()

		files, err := filestore.NewLocalFileStore(filepath.Join(dir, "uploads"))
		require.NoError(t, err)

		seedCtx, cancel := context.WithCancel(context.Background())
		defer cancel()
		profiles := profile.NewService(seedCtx, store)
		require.NoError(t, profiles.Create("u1", "Alice"))

		chatClient := chat.NewClient(store, files, nil)
		roomID, err := chatClient.CreateRoom("general", "integration traffic", "u1")
		require.NoError(t, err)
		return roomID
	}()

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- run(ctx) }()
	defer func() {
		cancel()
		select {
		case err := <-runDone:
			require.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("server did not shut down")
		}
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitHealthy(t, base)

	// an unidentified client is turned away before the upgrade
	resp, err := http.Get(base + "/sync")
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"X-Uid": []string{"u1"}}
	conn, resp2, err := websocket.DefaultDialer.Dial(
		fmt.Sprintf("ws://127.0.0.1:%d/sync", port), header)
	require.NoError(t, err)
	if resp2 != nil {
		_ = resp2.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(ws.ClientCommand{Type: ws.CommandOpen, RoomID: roomID}))
	readEvent(t, conn, func(ev ws.ServerEvent) bool {
		return ev.Type == ws.EventMessages && ev.RoomID == roomID && len(ev.Messages) == 0
	})

	require.NoError(t, conn.WriteJSON(ws.ClientCommand{Type: ws.CommandSend, Text: "hello from the wire"}))
	ev := readEvent(t, conn, func(ev ws.ServerEvent) bool {
		return ev.Type == ws.EventMessages && len(ev.Messages) == 1
	})
	msg := ev.Messages[0]
	require.Equal(t, "hello from the wire", msg.Text)
	require.Equal(t, "u1", msg.Author.UID)
	require.Equal(t, "Alice", msg.Author.Name)
	require.NotZero(t, msg.CreatedAt)

	require.NoError(t, conn.WriteJSON(ws.ClientCommand{Type: ws.CommandLike, MsgID: msg.ID}))
	notice := readEvent(t, conn, func(ev ws.ServerEvent) bool { return ev.Type == ws.EventNotice })
	require.Equal(t, chat.NoticeLiked, notice.Notice)
	readEvent(t, conn, func(ev ws.ServerEvent) bool {
		return ev.Type == ws.EventMessages && len(ev.Messages) == 1 && ev.Messages[0].LikeCount == 1
	})

	require.NoError(t, conn.WriteJSON(ws.ClientCommand{Type: ws.CommandSignOut}))

	// the server closes the socket after a clean sign-out
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var ignored ws.ServerEvent
	for conn.ReadJSON(&ignored) == nil {
	}
}
