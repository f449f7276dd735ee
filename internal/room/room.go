// Package room implements the named broadcast group at the heart of
// the chat server: a membership set, an append-only message history,
// and a subscriber fan-out that relays each message to every attached
// session.
package room

import (
	"encoding/xml"
	"strconv"
	"sync"
	"time"
)

// Message is one entry in a room's history. An empty User marks a
// system (meta) message such as a join or leave notice. Messages are
// created once and never mutated or removed.
type Message struct {
	User      string
	Text      string
	Timestamp time.Time
}

// Subscriber receives every message posted to a room. user is empty
// for system messages. Invoked synchronously inside the posting call;
// the invocation order across subscribers is unspecified.
type Subscriber func(user, text string)

// Room is a named broadcast group. All state is guarded by one mutex;
// concurrent joins, leaves, posts, and subscription changes never
// interleave within a single room.
type Room struct {
	name string

	mu          sync.Mutex
	members     map[string]struct{}
	history     []Message
	subscribers map[string]Subscriber
}

// New creates an empty room.
func New(name string) *Room {
	return &Room{
		name:        name,
		members:     make(map[string]struct{}),
		subscribers: make(map[string]Subscriber),
	}
}

// Name returns the room's registry key.
func (r *Room) Name() string {
	return r.name
}

// Join adds user to the membership set. Returns false, with no state
// change, if the name is already present: the first registrant wins
// and later joiners with the same name are rejected, not merged.
func (r *Room) Join(user string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.members[user]; exists {
		return false
	}
	r.members[user] = struct{}{}
	return true
}

// Leave removes user from the membership set. Removing an absent user
// is a no-op.
func (r *Room) Leave(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, user)
}

// MessageReceived appends a user message to the history and notifies
// every subscriber before returning.
func (r *Room) MessageReceived(user, text string) {
	r.post(user, text)
}

// MetaMessage appends a system message to the history and notifies
// every subscriber before returning.
func (r *Room) MetaMessage(text string) {
	r.post("", text)
}

func (r *Room) post(user, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, Message{User: user, Text: text, Timestamp: time.Now()})
	for _, notify := range r.subscribers {
		notify(user, text)
	}
}

// Subscribe attaches a fan-out callback under the given handle,
// replacing any callback already registered under it.
func (r *Room) Subscribe(handle string, fn Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers[handle] = fn
}

// Unsubscribe detaches the callback registered under handle. Unknown
// handles are a no-op.
func (r *Room) Unsubscribe(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subscribers, handle)
}

// MemberCount returns the current membership size.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// History returns a copy of the room's message history in append
// order.
func (r *Room) History() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}

type historyDoc struct {
	XMLName  xml.Name       `xml:"messages"`
	Room     string         `xml:"room,attr"`
	Messages []historyEntry `xml:"message"`
}

type historyEntry struct {
	User      string `xml:"user,attr"`
	Timestamp string `xml:"timestamp,attr"`
	Text      string `xml:",chardata"`
}

// ExportHistory renders the room name and full ordered message list
// as an XML document: a "messages" root with one "message" child per
// entry, timestamps as decimal seconds since the epoch.
func (r *Room) ExportHistory() ([]byte, error) {
	r.mu.Lock()
	doc := historyDoc{Room: r.name, Messages: make([]historyEntry, len(r.history))}
	for i, m := range r.history {
		doc.Messages[i] = historyEntry{
			User:      m.User,
			Timestamp: strconv.FormatFloat(float64(m.Timestamp.UnixMicro())/1e6, 'f', 6, 64),
			Text:      m.Text,
		}
	}
	r.mu.Unlock()

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
