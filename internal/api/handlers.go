package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FranckSowax/botpharma/internal/models"
	"github.com/FranckSowax/botpharma/internal/phone"
)

// webhookHandler receives gateway webhook payloads. Messages sent by the bot
// itself and messages without a text body are dropped. Processing failures
// are logged but still acknowledged: the gateway retries on non-2xx answers,
// and a retry of a half-processed message would duplicate side effects.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}

	var payload models.WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		slog.Error("Server.webhookHandler: failed to decode payload", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid webhook payload"))
		return
	}

	processed := 0
	for _, m := range payload.Messages {
		if m.FromMe {
			continue
		}
		body := strings.TrimSpace(m.TextBody())
		if body == "" {
			continue
		}
		in := models.IncomingMessage{
			From:      phone.FromChatID(m.Sender()),
			Body:      body,
			Name:      m.NotifyName,
			Timestamp: time.Unix(m.Timestamp, 0),
		}
		if s.handleSurveyRating(r, in) {
			processed++
			continue
		}
		if _, err := s.handler.HandleIncoming(r.Context(), in); err != nil {
			slog.Error("Server.webhookHandler: message processing failed", "error", err, "from", in.From)
			continue
		}
		processed++
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Webhook processed", map[string]int{"processed": processed}))
}

// handleSurveyRating intercepts bare 1-5 replies from customers holding a
// pending satisfaction survey. Reports whether the message was consumed.
func (s *Server) handleSurveyRating(r *http.Request, in models.IncomingMessage) bool {
	rating, err := strconv.Atoi(strings.TrimSpace(in.Body))
	if err != nil || rating < 1 || rating > 5 {
		return false
	}
	user, err := s.store.GetUserByPhone(phone.Normalize(in.From))
	if err != nil || user == nil {
		return false
	}
	_, err = s.orchestrator.Survey().ProcessSurveyResponse(r.Context(), user.ID, rating, "", time.Now())
	if err != nil {
		if !errors.Is(err, models.ErrNoPendingSurvey) {
			slog.Error("Server.handleSurveyRating: failed to process rating", "error", err, "user_id", user.ID)
		}
		return false
	}
	slog.Info("Server.handleSurveyRating: survey rating recorded", "user_id", user.ID, "rating", rating)
	return true
}

// automationRunHandler triggers one full automation cycle on demand.
func (s *Server) automationRunHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	report := s.orchestrator.RunAll(r.Context(), time.Now())
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Automation cycle complete", report))
}

// automationStatsHandler serves the cross-engine counters.
func (s *Server) automationStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	stats, err := s.orchestrator.CollectStats()
	if err != nil {
		slog.Error("Server.automationStatsHandler: failed to collect stats", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to collect automation stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(stats))
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}
