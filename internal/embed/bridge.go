// internal/embed/bridge.go
package embed

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// MsgResizeIframe is the message type an embedded document sends when its
// rendered height changes
const MsgResizeIframe = "resize-iframe"

// MinEmbedHeight is the floor applied to reported heights so an embedded
// region never visually collapses
const MinEmbedHeight = 800.0

// ResizeMessage is the wire shape of a height report
type ResizeMessage struct {
	Type   string  `json:"type"`
	NoteID string  `json:"noteId"`
	Height float64 `json:"height"`
}

type handlerEntry struct {
	id int
	fn func(height float64)
}

// Bridge fans height reports from embedded documents out to the portals
// that registered for them
type Bridge struct {
	log zerolog.Logger

	mu       sync.Mutex
	nextID   int
	handlers map[string][]handlerEntry
}

// NewBridge creates an empty bridge
func NewBridge(log zerolog.Logger) *Bridge {
	return &Bridge{
		log:      log,
		handlers: make(map[string][]handlerEntry),
	}
}

// Register subscribes to height reports for one embedded document and
// returns the matching unregister
func (b *Bridge) Register(noteID string, fn func(height float64)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[noteID] = append(b.handlers[noteID], handlerEntry{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		entries := b.handlers[noteID]
		for i, e := range entries {
			if e.id == id {
				b.handlers[noteID] = append(entries[:i], entries[i+1:]...)
				break
			}
		}
		if len(b.handlers[noteID]) == 0 {
			delete(b.handlers, noteID)
		}
	}
}

// Dispatch applies the height floor and delivers the report. Unknown
// message types are ignored.
func (b *Bridge) Dispatch(msg ResizeMessage) {
	if msg.Type != MsgResizeIframe {
		return
	}
	height := msg.Height
	if height < MinEmbedHeight {
		height = MinEmbedHeight
	}

	b.mu.Lock()
	entries := append([]handlerEntry(nil), b.handlers[msg.NoteID]...)
	b.mu.Unlock()

	for _, e := range entries {
		e.fn(height)
	}
}

// HandleRaw parses one raw message and dispatches it. Malformed payloads
// are logged and dropped; height sync is best-effort.
func (b *Bridge) HandleRaw(data []byte) {
	var msg ResizeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		b.log.Debug().Err(err).Msg("embed: undecodable message dropped")
		return
	}
	b.Dispatch(msg)
}

// Listen pumps messages from a websocket connection into the bridge until
// the connection fails or closes
func (b *Bridge) Listen(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		b.HandleRaw(data)
	}
}
