package handlers

import (
	"context"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/tannerhall/tinychat"
	"github.com/tannerhall/tinychat/internal/chat"
	"github.com/tannerhall/tinychat/internal/models"
	"github.com/tmaxmax/go-sse"
	"github.com/yuin/goldmark"
)

// Completer streams assistant replies for a conversation history. It accepts
// a context and a sequence of messages, returning an iterator that yields
// response chunks and potential errors.
type Completer interface {
	Stream(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
}

// Main handles the core functionality of the chat application: it renders the
// page templates, drives conversations against the completer, and pushes live
// updates to the browser over server-sent events.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	completer Completer
	convs     *chat.Registry
	md        goldmark.Markdown

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance around the provided completer. It parses
// the required HTML templates from the embedded filesystem and configures the
// SSE server to subscribe each client to its own conversation's topic.
func NewMain(completer Completer, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		tinychat.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{sse.DefaultTopic}

				// We create a conversation-specific topic so each page only sees its own updates
				if convID := s.Req.URL.Query().Get("conversation_id"); convID != "" {
					topics = append(topics, conversationTopic(convID))
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		completer: completer,
		convs:     chat.NewRegistry(),
		md:        newMarkdown(),
		logger:    logger.With(slog.String("module", "handlers")),
	}, nil
}

func conversationTopic(conversationID string) string {
	return fmt.Sprintf("conversation-%s", conversationID)
}

// HandleSSE serves the event stream the page subscribes to for live updates.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts
// a close message to all connected clients and waits up to 5 seconds for
// connections to terminate. After the timeout, any remaining connections are
// forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeChat")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
