// Package status defines the status envelope exchanged between server
// and client: a closed status code plus an optional payload. The code
// ordinals are part of the wire contract and must never be renumbered.
package status

import (
	"fmt"

	"parlor/internal/codec"
)

// Code is the outcome of a command, or the kind of a server push.
type Code uint8

const (
	CodeOK Code = iota
	CodeNewMessage
	CodeKeyInvalid
	CodeInvalidCommand
	CodeNeedsLogin
	CodeWanderRoom
	CodeDuplicateUser
	CodeUnauthorized
	CodeTooFrequent
)

var codeNames = map[Code]string{
	CodeOK:             "ok",
	CodeNewMessage:     "new_message",
	CodeKeyInvalid:     "key_invalid",
	CodeInvalidCommand: "invalid_cmd",
	CodeNeedsLogin:     "needs_login",
	CodeWanderRoom:     "wander_room",
	CodeDuplicateUser:  "duplicate_user",
	CodeUnauthorized:   "unauthorized",
	CodeTooFrequent:    "too_frequent",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", uint8(c))
}

// Payload is the optional data of an envelope: the peer's public key
// blob during the handshake, or a relayed room message. An empty User
// on a relayed message marks it as a system (meta) message.
type Payload struct {
	Key  []byte `cbor:"key,omitempty"`
	User string `cbor:"user,omitempty"`
	Text string `cbor:"text,omitempty"`
}

// Envelope is the request/response wrapper carried on the wire.
// Immutable once constructed.
type Envelope struct {
	Code Code
	Data *Payload
}

// OK builds a success envelope, optionally carrying data.
func OK(data *Payload) Envelope {
	return Envelope{Code: CodeOK, Data: data}
}

// NewMessage builds a message push envelope for a (user, text) pair.
func NewMessage(user, text string) Envelope {
	return Envelope{Code: CodeNewMessage, Data: &Payload{User: user, Text: text}}
}

// Reject builds a bare failure envelope for the given code.
func Reject(code Code) Envelope {
	return Envelope{Code: code}
}

// Success reports whether the envelope carries one of the two success
// codes.
func (e Envelope) Success() bool {
	return e.Code == CodeOK || e.Code == CodeNewMessage
}

// wireEnvelope decodes code through a pointer so that a map without a
// code entry is distinguishable from code 0.
type wireEnvelope struct {
	Code *uint8   `cbor:"code"`
	Data *Payload `cbor:"data,omitempty"`
}

// Pack serializes the envelope to its wire form.
func (e Envelope) Pack() ([]byte, error) {
	code := uint8(e.Code)
	return codec.Marshal(wireEnvelope{Code: &code, Data: e.Data})
}

// Unpack is the exact inverse of Pack. It fails if the bytes are not a
// well-formed envelope, the code entry is absent, or the code is not a
// recognized ordinal.
func Unpack(data []byte) (Envelope, error) {
	var wire wireEnvelope
	if err := codec.Unmarshal(data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if wire.Code == nil {
		return Envelope{}, fmt.Errorf("%w: missing code", ErrMalformedEnvelope)
	}
	if *wire.Code > uint8(CodeTooFrequent) {
		return Envelope{}, fmt.Errorf("%w: %d", ErrUnknownCode, *wire.Code)
	}
	return Envelope{Code: Code(*wire.Code), Data: wire.Data}, nil
}
