package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/transcribegateway/internal/gateway"
)

// TranscribeHandler exposes the gateway. Both endpoints always answer 200;
// callers branch on the body, never on the status code.
type TranscribeHandler struct {
	svc       *gateway.Service
	maxMemory int64
}

func NewTranscribeHandler(svc *gateway.Service, maxMemory int64) *TranscribeHandler {
	return &TranscribeHandler{svc: svc, maxMemory: maxMemory}
}

// Transcribe accepts a multipart form with optional "file" and "language".
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	in, err := gateway.ParseInbound(r, h.maxMemory)
	if err != nil {
		writeJSON(w, http.StatusOK, h.svc.Reject(err))
		return
	}

	writeJSON(w, http.StatusOK, h.svc.Transcribe(r.Context(), in))
}

// Health reports provider reachability.
func (h *TranscribeHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health(r.Context()))
}

// Throttled answers a rate-limited submission with the backup envelope, still
// with status 200.
func (h *TranscribeHandler) Throttled(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Throttle(r.Context()))
}
