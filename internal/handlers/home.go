package handlers

import (
	"net/http"

	"github.com/google/uuid"
)

type homePageData struct {
	ConversationID string
}

// HandleHome renders the chat page. Every page load starts a fresh
// conversation; transcripts live only as long as the server process.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	data := homePageData{
		ConversationID: uuid.New().String(),
	}

	err := m.templates.ExecuteTemplate(w, "home.html", data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
