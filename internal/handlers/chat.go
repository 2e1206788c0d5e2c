package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tannerhall/tinychat/internal/chat"
	"github.com/tannerhall/tinychat/internal/models"
	"github.com/tmaxmax/go-sse"
)

// SSE event types for real-time updates.
var (
	messagesSSEType = sse.Type("messages")
	stateSSEType    = sse.Type("state")
)

// messageEvent carries one rendered transcript entry to the page. The HTML
// field holds the full content streamed so far, so a missed event never
// corrupts the message.
type messageEvent struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	HTML string `json:"html"`
}

// stateEvent tells the page which controls to enable and whether to show the
// typing indicator or the error banner.
type stateEvent struct {
	State  string             `json:"state"`
	Typing bool               `json:"typing"`
	Error  *models.ProxyError `json:"error,omitempty"`
}

type chatMessageData struct {
	ID   string
	Role string
	HTML template.HTML
}

// HandleChats processes chat submissions through HTTP POST requests. It
// expects "conversation_id" and "message" form fields, appends the user
// message to the conversation, and initiates asynchronous streaming of the
// assistant response.
//
// The function returns appropriate HTTP error responses for invalid methods,
// missing required fields, or a turn that is already in flight. For
// successful requests, it renders the user message template for immediate
// display; the assistant response arrives over Server-Sent Events (SSE).
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	convID := r.FormValue("conversation_id")
	if convID == "" {
		m.logger.Error("Conversation ID is required")
		http.Error(w, "Conversation ID is required", http.StatusBadRequest)
		return
	}

	conv := m.convs.GetOrCreate(convID)

	turn, err := conv.Submit(r.FormValue("message"))
	switch {
	case errors.Is(err, chat.ErrBlankInput):
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	case errors.Is(err, chat.ErrBusy):
		http.Error(w, "A response is still streaming", http.StatusConflict)
		return
	case err != nil:
		m.logger.Error("Failed to submit message",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Start async streaming of the assistant response
	go m.streamCompletion(conv, turn)

	m.publishState(conv)

	html, err := m.renderMarkdown(turn.User.Content)
	if err != nil {
		m.logger.Error("Failed to render message content",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	err = m.templates.ExecuteTemplate(w, "chat_message", chatMessageData{
		ID:   turn.User.ID,
		Role: string(turn.User.Role),
		HTML: html,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleCancel aborts the in-flight turn of a conversation. The partial
// assistant reply stays in the transcript and no error banner is raised.
func (m Main) HandleCancel(w http.ResponseWriter, r *http.Request) {
	conv, ok := m.conversationFromForm(w, r)
	if !ok {
		return
	}

	if conv.Cancel() {
		m.publishState(conv)
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRetry re-sends the history of a failed turn. The history going
// upstream is identical to the one the failed request carried.
func (m Main) HandleRetry(w http.ResponseWriter, r *http.Request) {
	conv, ok := m.conversationFromForm(w, r)
	if !ok {
		return
	}

	turn, err := conv.Retry()
	if err != nil {
		http.Error(w, "Nothing to retry", http.StatusConflict)
		return
	}

	go m.streamCompletion(conv, turn)

	m.publishState(conv)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDismiss clears the error banner of a conversation.
func (m Main) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	conv, ok := m.conversationFromForm(w, r)
	if !ok {
		return
	}

	conv.Dismiss()
	m.publishState(conv)
	w.WriteHeader(http.StatusNoContent)
}

func (m Main) conversationFromForm(w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, false
	}

	convID := r.FormValue("conversation_id")
	if convID == "" {
		http.Error(w, "Conversation ID is required", http.StatusBadRequest)
		return nil, false
	}

	conv, ok := m.convs.Get(convID)
	if !ok {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return nil, false
	}

	return conv, true
}

// streamCompletion drives one turn: it consumes the completer's stream,
// feeds the conversation's state machine, and publishes updates as they
// land.
func (m Main) streamCompletion(conv *chat.Conversation, turn chat.Turn) {
	for chunk, err := range m.completer.Stream(turn.Ctx, turn.History) {
		if err != nil {
			if turn.Ctx.Err() != nil {
				// Canceled locally; the cancel path already settled the state.
				return
			}

			var perr *models.ProxyError
			if !errors.As(err, &perr) {
				perr = &models.ProxyError{Kind: models.ErrorKindUnknown, Message: err.Error()}
			}
			m.logger.Error("Completion stream failed",
				slog.String("conversationID", conv.ID()),
				slog.String(errLoggerKey, perr.Error()))

			conv.StreamFailed(turn, perr)
			m.publishState(conv)
			return
		}

		msg, ok := conv.ChunkReceived(turn, chunk)
		if !ok {
			// The turn was settled under us, so drop the stragglers.
			return
		}
		m.publishMessage(conv.ID(), msg)
	}

	conv.StreamEnded(turn)
	m.publishState(conv)
}

func (m Main) publishMessage(convID string, msg models.Message) {
	html, err := m.renderMarkdown(msg.Content)
	if err != nil {
		m.logger.Error("Failed to render message content",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	payload, err := json.Marshal(messageEvent{
		ID:   msg.ID,
		Role: string(msg.Role),
		HTML: string(html),
	})
	if err != nil {
		m.logger.Error("Failed to marshal message event",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	e := sse.Message{Type: messagesSSEType}
	e.AppendData(string(payload))
	if err := m.sseSrv.Publish(&e, conversationTopic(convID)); err != nil {
		m.logger.Error("Failed to publish message",
			slog.String("conversationID", convID),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) publishState(conv *chat.Conversation) {
	payload, err := json.Marshal(stateEvent{
		State:  string(conv.State()),
		Typing: conv.Typing(),
		Error:  conv.LastError(),
	})
	if err != nil {
		m.logger.Error("Failed to marshal state event",
			slog.String("conversationID", conv.ID()),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	e := sse.Message{Type: stateSSEType}
	e.AppendData(string(payload))
	if err := m.sseSrv.Publish(&e, conversationTopic(conv.ID())); err != nil {
		m.logger.Error("Failed to publish state",
			slog.String("conversationID", conv.ID()),
			slog.String(errLoggerKey, err.Error()))
	}
}
