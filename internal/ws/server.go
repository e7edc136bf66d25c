package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"talkroom/internal/chat"
	"talkroom/internal/profile"
	"talkroom/internal/storage"
)

type Server struct {
	store    *storage.Store
	chat     *chat.Client
	profiles *profile.Service
	upgrader *websocket.Upgrader
}

func NewServer(store *storage.Store, chatClient *chat.Client, profiles *profile.Service) *Server {
	return &Server{
		store:    store,
		chat:     chatClient,
		profiles: profiles,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
	}
}

// HandleConnections upgrades the request and runs the session until the
// socket dies or the client signs out. Session identity comes from the
// auth collaborator in front of this handler; here it is the uid header.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	uid := r.Header.Get("X-Uid")
	if uid == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading to websocket: %v", err)
		return
	}

	session := NewSession(s.store, s.chat, s.profiles, conn, uid)
	if err := session.Handle(r.Context()); err != nil {
		log.Printf("session %s ended with error: %v", session.sessionID, err)
	}
}
