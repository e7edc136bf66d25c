package storage

import "github.com/google/uuid"

type deferredWrite struct {
	path  string
	value any
}

// session tracks one client connection: its connectivity state, its
// connectivity watchers and the deferred writes to fire if it drops.
type session struct {
	connected bool
	deferred  []deferredWrite
	watchers  map[string]chan bool
}

func (s *Store) session(id string) *session {
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{watchers: make(map[string]chan bool)}
		s.sessions[id] = sess
	}
	return sess
}

// Connect marks the session connected and wakes its connectivity watchers.
func (s *Store) Connect(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID)
	if sess.connected {
		return
	}
	sess.connected = true
	for _, ch := range sess.watchers {
		deliver(ch, true)
	}
}

// Disconnect marks the session disconnected, wakes its watchers, then
// applies every deferred write the session registered, all in one
// commit, and drops them. Timestamp sentinels in deferred values resolve
// now, not at registration time.
func (s *Store) Disconnect(sessionID string) error {
	s.mu.Lock()
	sess := s.session(sessionID)
	if !sess.connected {
		s.mu.Unlock()
		return nil
	}
	sess.connected = false
	for _, ch := range sess.watchers {
		deliver(ch, false)
	}
	deferred := sess.deferred
	sess.deferred = nil
	s.mu.Unlock()

	if len(deferred) == 0 {
		return nil
	}
	updates := make(map[string]any, len(deferred))
	for _, dw := range deferred {
		updates[dw.path] = dw.value
	}
	return s.AtomicWrite(updates)
}

// OnDisconnect registers a write to be applied server-side if the
// session disconnects without a clean sign-out. Re-registering the same
// path replaces the previous value.
func (s *Store) OnDisconnect(sessionID, path string, value any) error {
	if _, _, _, err := splitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID)
	for i, dw := range sess.deferred {
		if dw.path == path {
			sess.deferred[i].value = value
			return nil
		}
	}
	sess.deferred = append(sess.deferred, deferredWrite{path: path, value: value})
	return nil
}

// CancelOnDisconnect removes a previously registered deferred write.
func (s *Store) CancelOnDisconnect(sessionID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID)
	for i, dw := range sess.deferred {
		if dw.path == path {
			sess.deferred = append(sess.deferred[:i], sess.deferred[i+1:]...)
			return
		}
	}
}

// ConnectivitySubscribe streams the session's connected state, current
// value first. The returned cancel releases the watcher.
func (s *Store) ConnectivitySubscribe(sessionID string) (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.session(sessionID)
	id := uuid.NewString()
	ch := make(chan bool, 1)
	sess.watchers[id] = ch
	deliver(ch, sess.connected)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := sess.watchers[id]; ok {
			delete(sess.watchers, id)
			close(ch)
		}
	}
	return ch, cancel
}
