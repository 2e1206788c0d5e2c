package chat

import "sync"

// Registry tracks live conversations by ID. Conversations exist only in
// memory; a page reload mints a fresh ID and starts over.
type Registry struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{convs: make(map[string]*Conversation)}
}

// GetOrCreate returns the conversation with the given ID, creating it on
// first use.
func (r *Registry) GetOrCreate(id string) *Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.convs[id]; ok {
		return c
	}
	c := NewConversation(id)
	r.convs[id] = c
	return c
}

// Get returns the conversation with the given ID, if it exists.
func (r *Registry) Get(id string) (*Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.convs[id]
	return c, ok
}
