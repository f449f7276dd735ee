// Package session implements the server-side per-connection state
// machine: unencrypted key handshake, encrypted command loop, and a
// teardown sequence that runs exactly once however the connection
// ends.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"parlor/internal/room"
	"parlor/internal/secure"
	"parlor/internal/transport"
	"parlor/pkg/status"
)

// Registry is the session's view of the server: room lookup-or-create
// and exit bookkeeping.
type Registry interface {
	GetOrCreateRoom(name string) *room.Room
	SessionExit(s *Session)
}

// Options carries the tunables a session consumes.
type Options struct {
	// MinSendInterval is the shortest allowed spacing between two
	// accepted sends in one session.
	MinSendInterval time.Duration
	// MaxMessageLength bounds the text of a single send, in bytes.
	// Zero means unbounded.
	MaxMessageLength int
}

// Session drives one client connection. All fields are owned by the
// connection's goroutine; the only concurrent entry point is the
// relay callback, which touches nothing but the connection and the
// established cipher.
type Session struct {
	id     string
	conn   *transport.Conn
	scheme *secure.Scheme
	server Registry
	logger *slog.Logger

	user     string
	room     *room.Room
	limiter  throttle
	maxText  int
	teardown sync.Once
}

// New builds a session around an accepted connection.
func New(conn *transport.Conn, server Registry, opts Options, logger *slog.Logger) (*Session, error) {
	scheme, err := secure.NewScheme()
	if err != nil {
		return nil, fmt.Errorf("creating crypto scheme: %w", err)
	}
	id := uuid.New().String()
	return &Session{
		id:      id,
		conn:    conn,
		scheme:  scheme,
		server:  server,
		logger:  logger.With("session", id, "peer", conn.RemoteAddr()),
		limiter: throttle{min: opts.MinSendInterval},
		maxText: opts.MaxMessageLength,
	}, nil
}

// ID returns the session's identity, also used as its room
// subscription handle.
func (s *Session) ID() string {
	return s.id
}

// Run executes the session lifecycle and returns when the connection
// is finished. Teardown runs exactly once no matter how the loop
// exits.
func (s *Session) Run() {
	defer s.finish()
	if err := s.handshake(); err != nil {
		return
	}
	s.commandLoop()
}

// handshake loops until the client presents an importable key, then
// answers with the server's own key. Both directions are unencrypted;
// there is no retry limit.
func (s *Session) handshake() error {
	for {
		blob, err := s.conn.Recv()
		if err != nil {
			return err
		}
		if err := s.scheme.ImportPublicKey(blob); err != nil {
			if sendErr := s.reply(status.Reject(status.CodeKeyInvalid), false); sendErr != nil {
				return sendErr
			}
			continue
		}
		own, err := s.scheme.ExportPublicKey()
		if err != nil {
			return err
		}
		if err := s.reply(status.OK(&status.Payload{Key: own}), false); err != nil {
			return err
		}
		s.logger.Debug("handshake complete")
		return nil
	}
}

// commandLoop dispatches encrypted frames until quit or disconnect.
// Protocol rejections answer the peer and keep the loop alive; only
// transport failures end it.
func (s *Session) commandLoop() {
	for {
		frame, err := s.conn.Recv()
		if err != nil {
			return
		}
		plain, err := s.scheme.Decrypt(frame)
		if err != nil {
			s.reject(status.CodeUnauthorized)
			continue
		}
		cmd, err := decodeCommand(plain)
		if err != nil {
			s.reject(status.CodeInvalidCommand)
			continue
		}

		switch cmd.Type {
		case CmdLogin:
			s.handleLogin(cmd)
		case CmdJoin:
			s.handleJoin(cmd)
		case CmdSend:
			s.handleSend(cmd)
		case CmdLeave:
			s.handleLeave()
		case CmdQuit:
			s.leaveRoom()
			s.conn.Close()
			return
		}
	}
}

// handleLogin records the user name unconditionally; a re-login
// overwrites the previous name.
func (s *Session) handleLogin(cmd Command) {
	s.user = cmd.User
	s.logger.Info("login", "user", s.user)
	s.reply(status.OK(nil), true)
}

func (s *Session) handleJoin(cmd Command) {
	if s.user == "" {
		s.reject(status.CodeNeedsLogin)
		return
	}
	target := s.server.GetOrCreateRoom(cmd.Room)
	if !target.Join(s.user) {
		s.reject(status.CodeDuplicateUser)
		return
	}
	// A join from inside another room implies leaving it first.
	s.leaveRoom()
	s.room = target
	target.Subscribe(s.id, s.relay)
	s.reply(status.OK(nil), true)
	target.MetaMessage(fmt.Sprintf("%s joined the room", s.user))
	s.logger.Info("joined room", "user", s.user, "room", target.Name())
}

func (s *Session) handleSend(cmd Command) {
	if s.room == nil {
		s.reject(status.CodeWanderRoom)
		return
	}
	now := time.Now()
	if !s.limiter.allow(now) {
		s.reject(status.CodeTooFrequent)
		return
	}
	if s.maxText > 0 && len(cmd.Text) > s.maxText {
		s.reject(status.CodeInvalidCommand)
		return
	}
	if !s.scheme.Verify([]byte(cmd.Text), cmd.Signature) {
		s.reject(status.CodeUnauthorized)
		return
	}
	s.room.MessageReceived(s.user, cmd.Text)
	s.limiter.accept(now)
	s.reply(status.OK(nil), true)
}

func (s *Session) handleLeave() {
	if s.room == nil {
		s.reject(status.CodeWanderRoom)
		return
	}
	s.leaveRoom()
	s.reply(status.OK(nil), true)
}

// leaveRoom performs the leave side effects if the session is in a
// room: drop membership, detach the relay, post the departure notice.
// The relay is detached before the notice so the leaver does not
// receive its own departure.
func (s *Session) leaveRoom() {
	r := s.room
	if r == nil {
		return
	}
	s.room = nil
	r.Leave(s.user)
	r.Unsubscribe(s.id)
	r.MetaMessage(fmt.Sprintf("%s left the room", s.user))
	s.logger.Info("left room", "user", s.user, "room", r.Name())
}

// relay forwards a room broadcast to this session's client as an
// encrypted NEW_MESSAGE push. Runs on whichever session goroutine
// posted the message.
func (s *Session) relay(user, text string) {
	s.reply(status.NewMessage(user, text), true)
}

func (s *Session) reject(code status.Code) {
	s.reply(status.Reject(code), true)
}

// reply packs, optionally encrypts, and sends one envelope. Send
// failures are logged, not escalated: the read side of the loop
// observes the broken connection and drives teardown.
func (s *Session) reply(env status.Envelope, encrypt bool) error {
	data, err := env.Pack()
	if err != nil {
		return err
	}
	if encrypt {
		if data, err = s.scheme.Encrypt(data); err != nil {
			return err
		}
	}
	if err := s.conn.Send(data); err != nil {
		s.logger.Debug("send failed", "code", env.Code.String(), "error", err)
		return err
	}
	return nil
}

// finish runs the teardown sequence exactly once: leave any room,
// close the connection, and deregister from the server.
func (s *Session) finish() {
	s.teardown.Do(func() {
		s.leaveRoom()
		s.conn.Close()
		s.server.SessionExit(s)
		s.logger.Info("session ended", "user", s.user)
	})
}
