package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/responder"
	"github.com/54b3r/sortir-go/internal/store"
)

// Request bounds for POST /api/chat.
const (
	maxChatBodyBytes = 64 << 10
	maxMessageRunes  = 2000
)

// handleChat handles POST /api/chat. It runs one turn and replies with JSON.
// Retrieval and completion failures are reported in-band through the
// outcome field, never as HTTP errors.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, r, http.StatusBadRequest, "message is required")
		return
	}
	if utf8.RuneCountInString(req.Message) > maxMessageRunes {
		writeError(w, r, http.StatusRequestEntityTooLarge, "message is too long")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	log = log.With(slog.String("session_id", req.SessionID))

	history := s.history(r.Context(), log, &req)

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()

	ctx, cancel := context.WithTimeout(logging.WithLogger(r.Context(), log), s.cfg.ChatTimeout)
	defer cancel()

	start := time.Now()
	reply := s.responder.Respond(ctx, req.Message, history)
	outcome := string(reply.Outcome)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	log.Info("chat turn",
		slog.String("outcome", outcome),
		slog.Int("results", len(reply.Results)),
		slog.Duration("duration", time.Since(start)),
	)

	s.remember(r.Context(), log, req.SessionID, req.Message, reply)

	writeJSON(w, r, http.StatusOK, chatResponse{
		Reply:     reply.Text,
		SessionID: req.SessionID,
		Outcome:   outcome,
		Sources:   sources(reply),
	})
}

// history returns the previous turns of the conversation: stored turns when
// the server keeps history, otherwise the ones sent by the client.
func (s *Server) history(ctx context.Context, log *slog.Logger, req *chatRequest) []responder.Turn {
	if s.cfg.History == nil {
		turns := make([]responder.Turn, 0, len(req.History))
		for _, t := range req.History {
			role := responder.Role(t.Role)
			if role != responder.RoleUser && role != responder.RoleAssistant {
				continue
			}
			turns = append(turns, responder.Turn{Role: role, Content: t.Content})
		}
		return turns
	}

	msgs, err := s.cfg.History.Recent(ctx, req.SessionID, s.cfg.HistoryDepth)
	if err != nil {
		log.Warn("chat: history unavailable, continuing without it", slog.Any("error", err))
		return nil
	}
	turns := make([]responder.Turn, len(msgs))
	for i, m := range msgs {
		turns[i] = responder.Turn{Role: responder.Role(m.Role), Content: m.Content}
	}
	return turns
}

// remember stores the question and its reply. Apologies are not stored so a
// failed turn does not pollute the next prompt.
func (s *Server) remember(ctx context.Context, log *slog.Logger, sessionID, question string, reply *responder.Reply) {
	if s.cfg.History == nil || reply.Outcome == responder.OutcomeApology {
		return
	}
	if err := s.cfg.History.Append(ctx, sessionID, store.RoleUser, question); err != nil {
		log.Warn("chat: failed to store question", slog.Any("error", err))
		return
	}
	if err := s.cfg.History.Append(ctx, sessionID, store.RoleAssistant, reply.Text); err != nil {
		log.Warn("chat: failed to store reply", slog.Any("error", err))
	}
}

// handleSessionDelete handles DELETE /api/sessions/{id}.
func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.cfg.History.Clear(r.Context(), r.PathValue("id")); err != nil {
		logging.FromContext(r.Context()).Error("session delete failed", slog.Any("error", err))
		writeError(w, r, http.StatusInternalServerError, "could not delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sources(reply *responder.Reply) []chatSource {
	if len(reply.Results) == 0 {
		return nil
	}
	out := make([]chatSource, len(reply.Results))
	for i, res := range reply.Results {
		m := res.Chunk.Metadata
		out[i] = chatSource{
			Title:   m.Title,
			Venue:   m.LocationName,
			Address: m.LocationAddress,
			Dates:   responder.FormatDateRange(m.FirstDateBegin, m.LastDateEnd),
		}
	}
	return out
}
