package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/melodari/internal/app"
	"github.com/desertthunder/melodari/internal/server"
	"github.com/desertthunder/melodari/internal/tasks"
)

const eventStream = "text/event-stream"

type progressEvent struct {
	Phase   string `json:"phase"`
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

func newProgressEvent(u tasks.ProgressUpdate) progressEvent {
	return progressEvent{Phase: u.Phase.String(), Step: u.Step, Total: u.Total, Message: u.Message}
}

type convertOutcome struct {
	result *tasks.ConvertResult
	err    error
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// streamConvert runs the conversion in the background and relays its progress as SSE.
func (h *API) streamConvert(w http.ResponseWriter, r *http.Request, req app.ConvertRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		server.WriteMessage(w, http.StatusNotAcceptable, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", eventStream)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	progress := make(chan tasks.ProgressUpdate, 32)
	done := make(chan convertOutcome, 1)
	go func() {
		result, err := h.app.Convert(r.Context(), req, progress)
		done <- convertOutcome{result: result, err: err}
	}()

	for {
		select {
		case update := <-progress:
			writeEvent(w, "progress", newProgressEvent(update))
			flusher.Flush()
		case outcome := <-done:
			h.drain(w, progress)
			if outcome.err != nil {
				writeEvent(w, "error", map[string]any{
					"message": outcome.err.Error(),
					"status":  server.StatusFor(outcome.err),
					"result":  outcome.result,
				})
			} else {
				writeEvent(w, "result", outcome.result)
			}
			flusher.Flush()
			return
		}
	}
}

// drain relays updates buffered before the conversion returned.
func (h *API) drain(w http.ResponseWriter, progress <-chan tasks.ProgressUpdate) {
	for {
		select {
		case update := <-progress:
			writeEvent(w, "progress", newProgressEvent(update))
		default:
			return
		}
	}
}
