package ws

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"talkroom/internal/chat"
	"talkroom/internal/models"
	"talkroom/internal/presence"
	"talkroom/internal/profile"
	"talkroom/internal/storage"
)

type wsConnection interface {
	Close() error
	WriteJSON(v interface{}) error
	ReadJSON(v interface{}) error
}

// ClientCommand is one JSON command from the client.
type ClientCommand struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId,omitempty"`
	Text   string `json:"text,omitempty"`
	MsgID  string `json:"msgId,omitempty"`
	UID    string `json:"uid,omitempty"`
}

// ServerEvent is one JSON event to the client.
type ServerEvent struct {
	Type     string           `json:"type"`
	RoomID   string           `json:"roomId,omitempty"`
	Messages []models.Message `json:"messages,omitempty"`
	Notice   string           `json:"notice,omitempty"`
}

const (
	CommandOpen    = "open"
	CommandGrow    = "grow"
	CommandSend    = "send"
	CommandDelete  = "delete"
	CommandLike    = "like"
	CommandAdmin   = "admin"
	CommandSignOut = "signout"

	EventMessages = "messages"
	EventNotice   = "notice"
)

var errSignedOut = errors.New("signed out")

// Session binds one websocket to one store session. The socket's
// lifetime is the connectivity signal: opening it marks the session
// connected, any exit path disconnects it and fires the deferred
// presence write unless the client signed out cleanly first.
type Session struct {
	ws       wsConnection
	store    *storage.Store
	chat     *chat.Client
	profiles *profile.Service
	tracker  *presence.Tracker

	sessionID string
	uid       string
	roomID    string
	window    *chat.Window

	fromClient chan ClientCommand
	errorCh    chan error
}

func NewSession(
	store *storage.Store,
	chatClient *chat.Client,
	profiles *profile.Service,
	ws wsConnection,
	uid string,
) *Session {
	sessionID := uuid.NewString()
	return &Session{
		ws:         ws,
		store:      store,
		chat:       chatClient,
		profiles:   profiles,
		tracker:    presence.NewTracker(store, sessionID, uid, nil),
		sessionID:  sessionID,
		uid:        uid,
		fromClient: make(chan ClientCommand),
		errorCh:    make(chan error, 2),
	}
}

func (s *Session) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	s.store.Connect(s.sessionID)
	s.tracker.Start(ctx)

	defer func() {
		if s.window != nil {
			s.window.Close()
		}
		close(s.fromClient)
		close(s.errorCh)
		_ = s.store.Disconnect(s.sessionID)
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.errorCh <- s.pumpCommands(ctx)
		cancel()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.errorCh <- s.mainLoop(ctx)
		cancel()
	}()

	var err error
	select {
	case err = <-s.errorCh:
	case <-ctx.Done():
	}
	s.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errSignedOut) {
		return err
	}

	return nil
}

func (s *Session) pumpCommands(ctx context.Context) error {
	for {
		var cmd ClientCommand
		if err := s.ws.ReadJSON(&cmd); err != nil {
			return err
		}
		select {
		case s.fromClient <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) mainLoop(ctx context.Context) error {
	for {
		var updates <-chan []models.Message
		if s.window != nil {
			updates = s.window.Updates()
		}

		select {
		case cmd := <-s.fromClient:
			if err := s.processCommand(cmd); err != nil {
				return err
			}
		case msgs, ok := <-updates:
			if !ok {
				continue
			}
			event := ServerEvent{Type: EventMessages, RoomID: s.roomID, Messages: msgs}
			if err := s.ws.WriteJSON(event); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// processCommand runs one client command. Store and validation failures
// are surfaced as short-lived notices, never session-fatal.
func (s *Session) processCommand(cmd ClientCommand) error {
	switch cmd.Type {
	case CommandOpen:
		if s.window != nil {
			s.window.Close()
			s.window = nil
		}
		w, err := s.chat.OpenWindow(cmd.RoomID)
		if err != nil {
			return s.notice(err.Error())
		}
		s.window = w
		s.roomID = cmd.RoomID

	case CommandGrow:
		if s.window == nil {
			return nil
		}
		if err := s.window.Grow(); err != nil {
			return s.notice(err.Error())
		}

	case CommandSend:
		author, err := s.profiles.Author(s.uid)
		if err != nil {
			return s.notice(err.Error())
		}
		if _, err := s.chat.SendText(s.roomID, author, cmd.Text); err != nil {
			return s.notice(err.Error())
		}

	case CommandDelete:
		var window []models.Message
		if s.window != nil {
			window = s.window.Messages()
		}
		if _, err := s.chat.DeleteMessage(s.roomID, cmd.MsgID, window); err != nil {
			return s.notice(err.Error())
		}
		return s.notice("Message deleted")

	case CommandLike:
		outcome, err := s.chat.ToggleLike(cmd.MsgID, s.uid)
		if err != nil {
			return s.notice(err.Error())
		}
		return s.notice(outcome)

	case CommandAdmin:
		roomID := cmd.RoomID
		if roomID == "" {
			roomID = s.roomID
		}
		outcome, err := s.chat.ToggleAdmin(roomID, cmd.UID)
		if err != nil {
			return s.notice(err.Error())
		}
		return s.notice(outcome)

	case CommandSignOut:
		if err := s.tracker.SignOut(); err != nil {
			return s.notice(err.Error())
		}
		return errSignedOut
	}

	return nil
}

func (s *Session) notice(text string) error {
	return s.ws.WriteJSON(ServerEvent{Type: EventNotice, Notice: text})
}
