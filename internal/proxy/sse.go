package proxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tannerhall/tinychat/internal/models"
)

// writeSSEHeaders marks the response as a server-sent event stream and
// disables response buffering in intermediaries.
func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// writeSSEChunk forwards one completion chunk and flushes it immediately.
// Multi-line chunks become one data field per line so the text survives SSE
// framing intact.
func writeSSEChunk(w http.ResponseWriter, chunk string) error {
	for _, line := range strings.Split(chunk, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprint(w, "\n"); err != nil {
		return err
	}
	flush(w)
	return nil
}

// writeSSEDone terminates the stream the way OpenAI-compatible APIs do.
func writeSSEDone(w http.ResponseWriter) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	flush(w)
}

// writeSSEError reports a failure that happened after the status line was
// already sent.
func writeSSEError(w http.ResponseWriter, perr *models.ProxyError) {
	data, err := json.Marshal(perr)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
