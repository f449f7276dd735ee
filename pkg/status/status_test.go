package status

import (
	"bytes"
	"errors"
	"testing"

	"parlor/internal/codec"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	codes := []Code{
		CodeOK, CodeNewMessage, CodeKeyInvalid, CodeInvalidCommand,
		CodeNeedsLogin, CodeWanderRoom, CodeDuplicateUser,
		CodeUnauthorized, CodeTooFrequent,
	}
	payloads := []*Payload{
		nil,
		{Key: []byte{0x01, 0x02, 0x03}},
		{User: "alice", Text: "hi"},
		{Text: "system notice"},
	}

	for _, code := range codes {
		for _, payload := range payloads {
			env := Envelope{Code: code, Data: payload}
			packed, err := env.Pack()
			if err != nil {
				t.Fatalf("Pack(%v, %+v) failed: %v", code, payload, err)
			}
			got, err := Unpack(packed)
			if err != nil {
				t.Fatalf("Unpack failed for code %v: %v", code, err)
			}
			if got.Code != code {
				t.Errorf("code round-trip: got %v, want %v", got.Code, code)
			}
			if (got.Data == nil) != (payload == nil) {
				t.Fatalf("payload presence mismatch for %v: got %+v, want %+v", code, got.Data, payload)
			}
			if payload != nil {
				if !bytes.Equal(got.Data.Key, payload.Key) || got.Data.User != payload.User || got.Data.Text != payload.Text {
					t.Errorf("payload round-trip: got %+v, want %+v", got.Data, payload)
				}
			}
		}
	}
}

func TestUnpackRejectsUnknownCode(t *testing.T) {
	packed, err := Envelope{Code: Code(42)}.Pack()
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}
	if _, err := Unpack(packed); !errors.Is(err, ErrUnknownCode) {
		t.Errorf("expected ErrUnknownCode, got %v", err)
	}
}

func TestUnpackRejectsMalformedBytes(t *testing.T) {
	for _, data := range [][]byte{nil, {}, {0xff, 0x00, 0x13}, []byte("not cbor at all")} {
		if _, err := Unpack(data); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("Unpack(%x): expected ErrMalformedEnvelope, got %v", data, err)
		}
	}
}

func TestUnpackRejectsMissingCode(t *testing.T) {
	// Valid CBOR that is not an envelope: null, an empty map, and a map
	// carrying only data. None of these may decode as code 0.
	onlyData, err := codec.Marshal(map[string]any{
		"data": map[string]any{"text": "hi"},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for _, data := range [][]byte{{0xf6}, {0xa0}, onlyData} {
		if _, err := Unpack(data); !errors.Is(err, ErrMalformedEnvelope) {
			t.Errorf("Unpack(%x): expected ErrMalformedEnvelope, got %v", data, err)
		}
	}
}

func TestSuccess(t *testing.T) {
	cases := []struct {
		code Code
		want bool
	}{
		{CodeOK, true},
		{CodeNewMessage, true},
		{CodeKeyInvalid, false},
		{CodeInvalidCommand, false},
		{CodeNeedsLogin, false},
		{CodeWanderRoom, false},
		{CodeDuplicateUser, false},
		{CodeUnauthorized, false},
		{CodeTooFrequent, false},
	}
	for _, tc := range cases {
		if got := (Envelope{Code: tc.code}).Success(); got != tc.want {
			t.Errorf("Success(%v): got %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestConvenienceConstructors(t *testing.T) {
	ok := OK(&Payload{Key: []byte("k")})
	if ok.Code != CodeOK || string(ok.Data.Key) != "k" {
		t.Errorf("OK constructor: got %+v", ok)
	}
	msg := NewMessage("bob", "hello")
	if msg.Code != CodeNewMessage || msg.Data.User != "bob" || msg.Data.Text != "hello" {
		t.Errorf("NewMessage constructor: got %+v", msg)
	}
	rej := Reject(CodeTooFrequent)
	if rej.Code != CodeTooFrequent || rej.Data != nil {
		t.Errorf("Reject constructor: got %+v", rej)
	}
}
