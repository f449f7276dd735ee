// Package server accepts connections, owns the room registry, and
// runs one session per connection. Rooms are created lazily on first
// reference and live for the process lifetime.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/netutil"

	"parlor/internal/config"
	"parlor/internal/room"
	"parlor/internal/session"
	"parlor/internal/transport"
)

// Server multiplexes chat sessions and tracks the rooms they share.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	mu       sync.Mutex
	rooms    map[string]*room.Room
	sessions map[*session.Session]struct{}

	listener net.Listener
	httpSrv  *http.Server
}

// New builds a server from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		rooms:    make(map[string]*room.Room),
		sessions: make(map[*session.Session]struct{}),
	}
}

// GetOrCreateRoom returns the room registered under name, creating
// and registering an empty one on first reference. Behaves as a
// single lookup-or-insert under concurrent first access.
func (s *Server) GetOrCreateRoom(name string) *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[name]; ok {
		return r
	}
	r := room.New(name)
	s.rooms[name] = r
	return r
}

// GetRoom returns the room registered under name, if any.
func (s *Server) GetRoom(name string) (*room.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[name]
	return r, ok
}

// SessionExit drops a finished session from the bookkeeping set.
func (s *Server) SessionExit(sess *session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Handler returns the HTTP surface: the connection endpoint and the
// room history export.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleConnection)
	mux.HandleFunc("/history", s.handleHistory)
	return mux
}

// handleConnection upgrades one request and runs its session to
// completion. A session failure never propagates past its own
// connection.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Upgrade(w, r)
	if err != nil {
		s.logger.Warn("connection upgrade failed", "peer", r.RemoteAddr, "error", err)
		return
	}

	sess, err := session.New(conn, s, session.Options{
		MinSendInterval:  s.cfg.MinSendInterval,
		MaxMessageLength: s.cfg.MaxMessageLength,
	}, s.logger)
	if err != nil {
		s.logger.Error("session setup failed", "peer", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client connected", "peer", r.RemoteAddr, "session", sess.ID())
	sess.Run()
}

// handleHistory serves a room's full message history as XML.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("room")
	if name == "" {
		http.Error(w, "missing room parameter", http.StatusBadRequest)
		return
	}
	target, ok := s.GetRoom(name)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	doc, err := target.ExportHistory()
	if err != nil {
		http.Error(w, "history export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write(doc)
}

// ListenAndServe accepts connections until ctx is cancelled or the
// listener fails. The configured backlog bounds how many connections
// may be open at once.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if s.cfg.Backlog > 0 {
		ln = netutil.LimitListener(ln, s.cfg.Backlog)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.Handler()}

	go func() {
		<-ctx.Done()
		s.httpSrv.Close()
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	err = s.httpSrv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the bound listen address, valid once ListenAndServe
// has started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
