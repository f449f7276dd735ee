package session

import (
	"fmt"

	"parlor/internal/codec"
)

// Command type discriminators, the closed set of operations a client
// may request after the handshake.
const (
	CmdLogin = "login"
	CmdJoin  = "join"
	CmdSend  = "send"
	CmdLeave = "leave"
	CmdQuit  = "quit"
)

// Command is the decoded form of one encrypted client frame. Which
// fields are required depends on Type.
type Command struct {
	Type      string `cbor:"type"`
	User      string `cbor:"user,omitempty"`
	Room      string `cbor:"room,omitempty"`
	Text      string `cbor:"text,omitempty"`
	Signature []byte `cbor:"signature,omitempty"`
}

// wireCommand decodes text through a pointer so that a send frame
// lacking the field is distinguishable from one carrying empty text.
type wireCommand struct {
	Type      string  `cbor:"type"`
	User      string  `cbor:"user,omitempty"`
	Room      string  `cbor:"room,omitempty"`
	Text      *string `cbor:"text,omitempty"`
	Signature []byte  `cbor:"signature,omitempty"`
}

// decodeCommand parses a decrypted frame and checks that the fields
// required by its type are present. Every failure, including an
// unknown type or a missing field, maps to ErrInvalidCommand so the
// session rejects the frame instead of dropping the connection.
func decodeCommand(data []byte) (Command, error) {
	var wire wireCommand
	if err := codec.Unmarshal(data, &wire); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	cmd := Command{Type: wire.Type, User: wire.User, Room: wire.Room, Signature: wire.Signature}
	if wire.Text != nil {
		cmd.Text = *wire.Text
	}
	switch cmd.Type {
	case CmdLogin:
		if cmd.User == "" {
			return Command{}, fmt.Errorf("%w: login without user", ErrInvalidCommand)
		}
	case CmdJoin:
		if cmd.Room == "" {
			return Command{}, fmt.Errorf("%w: join without room", ErrInvalidCommand)
		}
	case CmdSend:
		if wire.Text == nil {
			return Command{}, fmt.Errorf("%w: send without text", ErrInvalidCommand)
		}
		if len(cmd.Signature) == 0 {
			return Command{}, fmt.Errorf("%w: send without signature", ErrInvalidCommand)
		}
	case CmdLeave, CmdQuit:
	default:
		return Command{}, fmt.Errorf("%w: type %q", ErrInvalidCommand, cmd.Type)
	}
	return cmd, nil
}

// EncodeCommand serializes a command to its wire form. The client's
// outbound queue drains through this before encryption. Send frames
// always carry text, even when it is empty.
func EncodeCommand(cmd Command) ([]byte, error) {
	wire := wireCommand{
		Type:      cmd.Type,
		User:      cmd.User,
		Room:      cmd.Room,
		Signature: cmd.Signature,
	}
	if cmd.Type == CmdSend {
		wire.Text = &cmd.Text
	}
	return codec.Marshal(wire)
}
