// internal/embed/bridge_test.go
package embed

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestBridgeAppliesHeightFloor(t *testing.T) {
	b := NewBridge(zerolog.Nop())

	var got float64
	b.Register("note-1", func(h float64) { got = h })

	b.Dispatch(ResizeMessage{Type: MsgResizeIframe, NoteID: "note-1", Height: 120})
	if got != MinEmbedHeight {
		t.Errorf("height = %v, want floor %v", got, MinEmbedHeight)
	}

	b.Dispatch(ResizeMessage{Type: MsgResizeIframe, NoteID: "note-1", Height: 1200})
	if got != 1200 {
		t.Errorf("height = %v, want 1200", got)
	}
}

func TestBridgeDispatchRouting(t *testing.T) {
	b := NewBridge(zerolog.Nop())

	var a, c int
	b.Register("note-a", func(h float64) { a++ })
	b.Register("note-c", func(h float64) { c++ })

	b.Dispatch(ResizeMessage{Type: MsgResizeIframe, NoteID: "note-a", Height: 900})
	if a != 1 || c != 0 {
		t.Errorf("routing wrong: a=%d c=%d", a, c)
	}

	// Unknown note ids and unknown message types are dropped.
	b.Dispatch(ResizeMessage{Type: MsgResizeIframe, NoteID: "note-x", Height: 900})
	b.Dispatch(ResizeMessage{Type: "navigate", NoteID: "note-a", Height: 900})
	if a != 1 {
		t.Errorf("unexpected dispatch: a=%d", a)
	}
}

func TestBridgeUnregister(t *testing.T) {
	b := NewBridge(zerolog.Nop())

	calls := 0
	unregister := b.Register("note-1", func(h float64) { calls++ })

	b.Dispatch(ResizeMessage{Type: MsgResizeIframe, NoteID: "note-1", Height: 900})
	unregister()
	b.Dispatch(ResizeMessage{Type: MsgResizeIframe, NoteID: "note-1", Height: 900})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	// Double unregister is a no-op.
	unregister()
}

func TestBridgeHandleRaw(t *testing.T) {
	b := NewBridge(zerolog.Nop())

	var got float64
	b.Register("note-1", func(h float64) { got = h })

	b.HandleRaw([]byte(`{"type":"resize-iframe","noteId":"note-1","height":1000}`))
	if got != 1000 {
		t.Errorf("height = %v, want 1000", got)
	}

	// Malformed payloads are dropped, not fatal.
	b.HandleRaw([]byte(`{not json`))
	if got != 1000 {
		t.Errorf("height changed on malformed payload: %v", got)
	}
}
