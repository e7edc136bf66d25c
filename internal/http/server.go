package http

import (
	"context"
	"log"
	"net/http"
	"sync"

	"talkroom/internal/chat"
	"talkroom/internal/profile"
	"talkroom/internal/storage"
	"talkroom/internal/ws"
)

type Server struct {
	server *http.Server
	wg     sync.WaitGroup
}

func NewServer(store *storage.Store, chatClient *chat.Client, profiles *profile.Service, addr string) *Server {
	wsServer := ws.NewServer(store, chatClient, profiles)

	mux := http.NewServeMux()
	mux.HandleFunc("/sync", wsServer.HandleConnections)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if addr == "" {
		addr = ":8080"
	}

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

func (s *Server) Start() error {
	log.Printf("Server started on %s", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
