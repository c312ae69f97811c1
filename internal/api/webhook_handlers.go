package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/karabot/karabot/internal/models"
)

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("KaraBot is running.", nil))
}

// verifyWebhookHandler handles the platform's GET verification handshake:
// a matching verify token echoes the challenge, anything else is 403. This
// is the only externally visible failure of the whole webhook surface.
func (s *Server) verifyWebhookHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "subscribe" && s.opts.VerifyToken != "" && token == s.opts.VerifyToken {
		slog.Info("Webhook verified successfully")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(challenge)); err != nil {
			slog.Error("Failed to write webhook challenge", "error", err)
		}
		return
	}

	slog.Warn("Webhook verification failed", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// deliverWebhookHandler handles POST deliveries. It always acknowledges
// with a bare 200: nothing that happens inside conversation handling is
// allowed to surface to the platform, or retries would storm.
func (s *Server) deliverWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}

	var env models.WebhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		slog.Warn("Failed to decode webhook envelope", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.dispatcher.HandleEnvelope(r.Context(), env)
	w.WriteHeader(http.StatusOK)
}
