// internal/notify/hub.go
package notify

import (
	"sort"
	"sync"

	"quanta/internal/doc"
)

// Token identifies one subscription
type Token int

// Hub fans document mutations out to listeners. Dispatch is synchronous
// and in subscription order: a listener's own writes re-enter Publish
// before the next listener runs, which keeps resync ahead of any later
// notification for the same region.
type Hub struct {
	mu   sync.Mutex
	next Token
	subs map[Token]func(doc.Mutation)
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[Token]func(doc.Mutation))}
}

// Subscribe registers a listener and returns its token
func (h *Hub) Subscribe(fn func(doc.Mutation)) Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	h.subs[h.next] = fn
	return h.next
}

// Unsubscribe removes a listener. Unknown tokens are ignored.
func (h *Hub) Unsubscribe(t Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, t)
}

// Publish delivers a mutation to every listener
func (h *Hub) Publish(m doc.Mutation) {
	h.mu.Lock()
	tokens := make([]Token, 0, len(h.subs))
	for t := range h.subs {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	fns := make([]func(doc.Mutation), 0, len(tokens))
	for _, t := range tokens {
		fns = append(fns, h.subs[t])
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}
