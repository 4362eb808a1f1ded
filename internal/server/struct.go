package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/sortir-go/internal/responder"
	"github.com/54b3r/sortir-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// exceed ChatTimeout.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one /api/chat turn (default: 90s).
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained chat rate allowed per client
	// (requests/second). Defaults to 1 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per client. Defaults to 5
	// if zero.
	RateBurst int
	// TrustProxy keys the rate limit on the first X-Forwarded-For address.
	// Enable it only behind a reverse proxy that sets the header.
	TrustProxy bool
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// History persists turns per session. If nil, the server is stateless and
	// clients send their own history with each request.
	History store.ConversationStore
	// HistoryDepth is the number of stored turns loaded per request.
	// Defaults to 10 if zero.
	HistoryDepth int
	// ReloadIndex re-reads the persisted index. If nil, POST
	// /api/index/reload answers 501.
	ReloadIndex func(ctx context.Context) error
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served on GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// chatResponder is the interface handleChat calls to answer a question.
// *responder.Responder satisfies it; tests inject a fake.
type chatResponder interface {
	// Respond runs one conversation turn. It never fails.
	Respond(ctx context.Context, userText string, history []responder.Turn) *responder.Reply
}

// Server is the HTTP server that exposes the responder.
type Server struct {
	// responder answers /api/chat turns.
	responder chatResponder
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatTurn is one message of client-supplied history.
type chatTurn struct {
	// Role is "user" or "assistant".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the visitor's question.
	Message string `json:"message"`
	// SessionID continues a stored conversation. A new one is issued when
	// empty.
	SessionID string `json:"session_id,omitempty"`
	// History is used when the server keeps no history of its own.
	History []chatTurn `json:"history,omitempty"`
}

// chatSource describes one retrieved event in a chat response.
type chatSource struct {
	Title   string `json:"title,omitempty"`
	Venue   string `json:"venue,omitempty"`
	Address string `json:"address,omitempty"`
	Dates   string `json:"dates"`
}

// chatResponse is the JSON response for POST /api/chat.
type chatResponse struct {
	// Reply is the assistant's answer.
	Reply string `json:"reply"`
	// SessionID identifies the conversation for follow-up questions.
	SessionID string `json:"session_id"`
	// Outcome is "ok", "no_context" or "apology".
	Outcome string `json:"outcome"`
	// Sources lists the retrieved events in rank order.
	Sources []chatSource `json:"sources,omitempty"`
}

// reloadResponse is the JSON response for POST /api/index/reload.
type reloadResponse struct {
	Reloaded bool   `json:"reloaded"`
	Error    string `json:"error,omitempty"`
}
