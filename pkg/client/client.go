// Package client implements the user-facing peer of the chat
// protocol: a FIFO queue of outbound operations drained independently
// of server replies, and a non-blocking inbound dispatch that raises
// message and failure events.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"parlor/internal/secure"
	"parlor/internal/session"
	"parlor/internal/transport"
	"parlor/pkg/status"
)

// pollInterval is how long the run loop parks when it has neither
// queued operations nor inbound frames.
const pollInterval = 10 * time.Millisecond

// Client is one end-user connection. Set the event callbacks before
// calling Connect; they are invoked from the Run goroutine.
type Client struct {
	// OnMessage is raised for every NEW_MESSAGE push: a room
	// broadcast relayed to this client. user is empty for system
	// messages.
	OnMessage func(user, text string)
	// OnFailure is raised for every non-success reply code.
	OnFailure func(code status.Code)

	url    string
	scheme *secure.Scheme
	conn   *transport.Conn
	ops    *opQueue
	logger *slog.Logger
}

// New builds a client for the server at url (ws://host:port/ws) with
// a fresh keypair.
func New(url string, logger *slog.Logger) (*Client, error) {
	scheme, err := secure.NewScheme()
	if err != nil {
		return nil, fmt.Errorf("creating crypto scheme: %w", err)
	}
	return &Client{
		url:    url,
		scheme: scheme,
		ops:    newOpQueue(),
		logger: logger,
	}, nil
}

// Connect dials the server and performs the client half of the
// handshake: send the public key, retry on KEY_INVALID, accept the
// server key from the first success reply. Afterwards the connection
// is in non-blocking receive mode and Run may start.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := transport.Dial(ctx, c.url)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.url, err)
	}
	c.conn = conn

	own, err := c.scheme.ExportPublicKey()
	if err != nil {
		conn.Close()
		return err
	}
	for {
		if err := conn.Send(own); err != nil {
			conn.Close()
			return err
		}
		frame, err := conn.Recv()
		if err != nil {
			conn.Close()
			return err
		}
		env, err := status.Unpack(frame)
		if err != nil {
			conn.Close()
			return fmt.Errorf("handshake reply: %w", err)
		}
		if !env.Success() {
			c.logger.Debug("handshake rejected", "code", env.Code.String())
			continue
		}
		if env.Data == nil || len(env.Data.Key) == 0 {
			conn.Close()
			return fmt.Errorf("handshake reply carried no server key")
		}
		if err := c.scheme.ImportPublicKey(env.Data.Key); err != nil {
			conn.Close()
			return fmt.Errorf("importing server key: %w", err)
		}
		break
	}

	conn.SetNonBlocking()
	c.logger.Debug("handshake complete")
	return nil
}

// Login queues a login as user. Returns immediately.
func (c *Client) Login(user string) {
	c.enqueue(session.Command{Type: session.CmdLogin, User: user})
}

// EnterRoom queues a join of the named room. Returns immediately.
func (c *Client) EnterRoom(name string) {
	c.enqueue(session.Command{Type: session.CmdJoin, Room: name})
}

// LeaveRoom queues leaving the current room. Returns immediately.
func (c *Client) LeaveRoom() {
	c.enqueue(session.Command{Type: session.CmdLeave})
}

// Compose signs text and queues it for sending. Returns immediately.
func (c *Client) Compose(text string) {
	c.enqueue(session.Command{
		Type:      session.CmdSend,
		Text:      text,
		Signature: c.scheme.Sign([]byte(text)),
	})
}

// Close queues the quit command. The server closes the connection
// after processing it, which ends Run.
func (c *Client) Close() {
	c.enqueue(session.Command{Type: session.CmdQuit})
}

func (c *Client) enqueue(cmd session.Command) {
	c.ops.push(cmd)
}

// Run drives the connection until the peer disconnects or ctx is
// cancelled. Inbound frames are dispatched as they arrive; queued
// operations are transmitted in FIFO order, independent of replies.
// Neither activity waits on the other.
func (c *Client) Run(ctx context.Context) error {
	defer c.conn.Close()
	for {
		for {
			frame, ok, err := c.conn.TryRecv()
			if err != nil {
				return nil
			}
			if !ok {
				break
			}
			c.dispatch(frame)
		}

		if cmd, ok := c.ops.pop(); ok {
			if err := c.transmit(cmd); err != nil {
				return nil
			}
			continue
		}

		select {
		case <-c.ops.wake:
		case <-c.conn.Done():
			// Drain anything the reader buffered before it
			// noticed the disconnect.
			for {
				frame, ok, err := c.conn.TryRecv()
				if err != nil || !ok {
					return nil
				}
				c.dispatch(frame)
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// dispatch decodes one inbound envelope and raises the matching
// event. Success replies to plain commands are deliberately not
// surfaced.
func (c *Client) dispatch(frame []byte) {
	plain, err := c.scheme.Decrypt(frame)
	if err != nil {
		c.logger.Warn("dropping undecryptable frame", "error", err)
		return
	}
	env, err := status.Unpack(plain)
	if err != nil {
		c.logger.Warn("dropping malformed envelope", "error", err)
		return
	}
	switch {
	case env.Code == status.CodeNewMessage && env.Data != nil:
		if c.OnMessage != nil {
			c.OnMessage(env.Data.User, env.Data.Text)
		}
	case !env.Success():
		if c.OnFailure != nil {
			c.OnFailure(env.Code)
		}
	}
}

func (c *Client) transmit(cmd session.Command) error {
	data, err := session.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if data, err = c.scheme.Encrypt(data); err != nil {
		return err
	}
	return c.conn.Send(data)
}
