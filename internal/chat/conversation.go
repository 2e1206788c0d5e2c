package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tannerhall/tinychat/internal/models"
)

// State identifies where a conversation is in its request cycle.
type State string

const (
	// StateIdle means no request is in flight; input is accepted.
	StateIdle State = "idle"
	// StateSending means a request was sent but no reply byte has arrived.
	StateSending State = "sending"
	// StateStreaming means assistant chunks are arriving.
	StateStreaming State = "streaming"
	// StateError means the last request failed; the error is held for the
	// banner until it is dismissed, retried, or typed over.
	StateError State = "error"
)

var (
	// ErrBlankInput rejects a submission that is empty after trimming.
	ErrBlankInput = errors.New("message is blank")
	// ErrBusy rejects a submission while a request is already in flight.
	ErrBusy = errors.New("a request is already in flight")
	// ErrNothingToRetry rejects a retry outside the error state.
	ErrNothingToRetry = errors.New("no failed request to retry")
)

// Turn is one request the conversation wants sent: the context that cancels
// it and the exact history to post. On retries User is the zero value, since
// no new message was appended. The turn must be handed back with every
// stream event so stragglers from an earlier turn cannot touch a later one.
type Turn struct {
	Ctx     context.Context
	History []models.Message
	User    models.Message

	gen uint64
}

// Conversation holds one chat transcript and the state machine guarding its
// single in-flight request. All methods are safe for concurrent use.
type Conversation struct {
	mu sync.Mutex

	id       string
	messages []models.Message
	state    State
	typing   bool
	lastErr  *models.ProxyError
	cancel   context.CancelFunc
	gen      uint64
}

// NewConversation creates an idle, empty conversation.
func NewConversation(id string) *Conversation {
	return &Conversation{id: id, state: StateIdle}
}

// ID returns the conversation's identifier.
func (c *Conversation) ID() string {
	return c.id
}

// Submit appends the user's message and opens a turn. The input is trimmed
// first; blank input is rejected without touching any state. Submissions are
// also rejected while a request is in flight. Submitting from the error
// state clears the banner.
func (c *Conversation) Submit(input string) (Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return Turn{}, ErrBlankInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateSending || c.state == StateStreaming {
		return Turn{}, ErrBusy
	}

	user := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: time.Now(),
	}
	c.messages = append(c.messages, user)
	c.lastErr = nil

	return c.beginTurn(user), nil
}

// Retry re-opens a turn for the failed request. A trailing partial assistant
// message is dropped first, so the history sent matches the failed attempt
// byte for byte.
func (c *Conversation) Retry() (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateError {
		return Turn{}, ErrNothingToRetry
	}

	if n := len(c.messages); n > 0 && c.messages[n-1].Role == models.RoleAssistant {
		c.messages = c.messages[:n-1]
	}
	c.lastErr = nil

	return c.beginTurn(models.Message{}), nil
}

// beginTurn moves to sending and snapshots the history. Callers must hold
// the mutex.
func (c *Conversation) beginTurn(user models.Message) Turn {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.state = StateSending
	c.typing = true
	c.gen++

	history := make([]models.Message, len(c.messages))
	copy(history, c.messages)

	return Turn{Ctx: ctx, History: history, User: user, gen: c.gen}
}

// ChunkReceived folds one streamed chunk into the transcript. The first
// chunk of a turn appends the assistant message; later chunks grow it. The
// returned message is a snapshot of the assistant message so far, and ok
// reports whether the chunk was accepted: chunks arriving after the turn has
// settled, for example when a cancel won the race, are dropped.
func (c *Conversation) ChunkReceived(t Turn, chunk string) (models.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.gen != c.gen {
		return models.Message{}, false
	}

	switch c.state {
	case StateSending:
		c.state = StateStreaming
		c.typing = false
		c.messages = append(c.messages, models.Message{
			ID:        uuid.New().String(),
			Role:      models.RoleAssistant,
			Content:   chunk,
			CreatedAt: time.Now(),
		})
	case StateStreaming:
		c.messages[len(c.messages)-1].Content += chunk
	default:
		return models.Message{}, false
	}

	return c.messages[len(c.messages)-1], true
}

// StreamEnded settles the turn back to idle after a completed reply.
func (c *Conversation) StreamEnded(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.gen != c.gen {
		return
	}
	if c.state != StateSending && c.state != StateStreaming {
		return
	}
	c.settle(StateIdle)
}

// StreamFailed settles the turn into the error state. Partial assistant
// content stays in the transcript; the error is held for the banner.
func (c *Conversation) StreamFailed(t Turn, perr *models.ProxyError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.gen != c.gen {
		return
	}
	if c.state != StateSending && c.state != StateStreaming {
		return
	}
	c.lastErr = perr
	c.settle(StateError)
}

// Cancel aborts the in-flight request and settles back to idle with no
// banner. Partial assistant content stays in the transcript. It reports
// whether there was a request to cancel.
func (c *Conversation) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSending && c.state != StateStreaming {
		return false
	}
	c.settle(StateIdle)
	return true
}

// Dismiss clears the error banner.
func (c *Conversation) Dismiss() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateError {
		return
	}
	c.lastErr = nil
	c.state = StateIdle
}

// settle finalizes the in-flight turn, canceling its context. Callers must
// hold the mutex.
func (c *Conversation) settle(next State) {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.typing = false
	c.state = next
}

// State returns the current machine state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Typing reports whether the reply is awaited but has not started arriving.
func (c *Conversation) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// LastError returns the failure held for the banner, or nil.
func (c *Conversation) LastError() *models.ProxyError {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Messages returns a copy of the transcript.
func (c *Conversation) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	messages := make([]models.Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}
