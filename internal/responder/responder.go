// Package responder answers a user question about Paris events. A turn runs
// embed → retrieve → render context → assemble prompt → complete, and every
// per-turn failure degrades to a fixed string instead of an error: retrieval
// problems yield [NoContextPlaceholder] as context, completion problems
// yield [Apology] as the reply.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/sortir-go/internal/budget"
	"github.com/54b3r/sortir-go/internal/logging"
	"github.com/54b3r/sortir-go/internal/rag"
)

// Fixed user-facing strings.
const (
	// Apology replaces the reply when the completion fails or times out.
	Apology = "Désolé, je n’ai pas pu traiter ta demande. Réessaie plus tard."
	// Greeting opens a new conversation.
	Greeting = "Salut 👋 Je peux te recommander des événements à Paris. Pose-moi ta question !"
)

// Defaults applied by [New] to zero Config fields.
const (
	DefaultTopK        = 4
	DefaultTemperature = 0.2
	DefaultTopP        = 0.9
	DefaultTimeout     = 60 * time.Second
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a message sent by the person asking.
	RoleUser Role = "user"
	// RoleAssistant is a reply produced by the responder.
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation transcript.
type Turn struct {
	Role    Role
	Content string
}

// Outcome classifies how a turn ended.
type Outcome string

const (
	// OutcomeOK means the reply was generated from retrieved context.
	OutcomeOK Outcome = "ok"
	// OutcomeNoContext means the reply was generated without context.
	OutcomeNoContext Outcome = "no_context"
	// OutcomeApology means the completion failed and Text is [Apology].
	OutcomeApology Outcome = "apology"
)

// Reply is the result of one turn.
type Reply struct {
	// Text is the user-facing reply.
	Text string
	// Contexts holds one flat line per retrieved chunk, see [FlatContext].
	Contexts []string
	// Results are the retrieved chunks in rank order.
	Results []rag.SearchResult
	// Prompt is the assembled prompt sent to the model.
	Prompt string
	// Outcome classifies the turn.
	Outcome Outcome
}

// Config tunes a [Responder]. Zero values select the defaults, except
// Temperature and TopP where zero is a valid setting; start from
// [DefaultConfig] to get the default sampling.
type Config struct {
	// TopK is the number of chunks retrieved per question.
	TopK int
	// Template is the prompt template, see [DefaultTemplate].
	Template string
	// Temperature and TopP are the fixed sampling parameters, sent as given.
	Temperature float32
	TopP        float32
	// NoSampling omits temperature and top-p for models that reject them.
	NoSampling bool
	// Timeout bounds one completion call. A timeout is a failure.
	Timeout time.Duration
	// HistoryDepth is the number of previous turns sent with the prompt.
	// Zero sends the prompt alone.
	HistoryDepth int
	// MaxContextTokens bounds prompt plus history; older turns are dropped
	// first.
	MaxContextTokens int
}

// DefaultConfig returns the configuration New uses when given none.
func DefaultConfig() *Config {
	return &Config{
		TopK:        DefaultTopK,
		Template:    DefaultTemplate,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		Timeout:     DefaultTimeout,
	}
}

// Responder runs conversation turns. It holds no per-conversation state and
// is safe for concurrent use.
type Responder struct {
	retriever *rag.Retriever
	chat      model.BaseChatModel
	cfg       Config
}

// New constructs a Responder. The construction order is embedding client,
// then index, then retriever, then responder.
func New(retriever *rag.Retriever, chat model.BaseChatModel, cfg *Config) (*Responder, error) {
	if retriever == nil {
		return nil, fmt.Errorf("responder: retriever must not be nil")
	}
	if chat == nil {
		return nil, fmt.Errorf("responder: chat model must not be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := *cfg
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.Template == "" {
		c.Template = DefaultTemplate
	}
	if err := ValidateTemplate(c.Template); err != nil {
		return nil, err
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HistoryDepth < 0 {
		c.HistoryDepth = 0
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &Responder{retriever: retriever, chat: chat, cfg: c}, nil
}

// Config returns the resolved configuration.
func (r *Responder) Config() Config { return r.cfg }

// Answer runs one turn and returns only the reply text.
func (r *Responder) Answer(ctx context.Context, userText string, history []Turn) string {
	return r.Respond(ctx, userText, history).Text
}

// Respond runs one turn. It never fails: see the package documentation for
// how errors degrade.
func (r *Responder) Respond(ctx context.Context, userText string, history []Turn) *Reply {
	log := logging.FromContext(ctx)
	reply := &Reply{}

	results, err := r.retriever.Retrieve(ctx, userText, r.cfg.TopK)
	switch {
	case errors.Is(err, rag.ErrEmbedding):
		log.Error("responder: query embedding failed, answering without context", slog.Any("error", err))
		results = nil
	case err != nil:
		log.Error("responder: vector search failed, answering without context", slog.Any("error", err))
		results = nil
	}
	reply.Results = results
	reply.Contexts = FlatContexts(results)
	log.Debug("responder: retrieved", slog.Int("results", len(results)))

	reply.Prompt = RenderPrompt(r.cfg.Template, RenderContext(results), userText)

	text, err := r.complete(ctx, reply.Prompt, history)
	switch {
	case err != nil:
		log.Error("responder: completion failed", slog.Any("error", err))
		reply.Text = Apology
		reply.Outcome = OutcomeApology
	case len(results) == 0:
		reply.Text = text
		reply.Outcome = OutcomeNoContext
	default:
		reply.Text = text
		reply.Outcome = OutcomeOK
	}
	return reply
}

// complete sends the prompt, preceded by up to HistoryDepth turns, and
// returns the trimmed completion text.
func (r *Responder) complete(ctx context.Context, prompt string, history []Turn) (string, error) {
	current := schema.UserMessage(prompt)
	msgs := r.historyMessages(current, history)
	msgs = append(msgs, current)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	// Global handlers (Langfuse tracing) only fire on an initialised context.
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "sortir-responder",
		Type:      "Responder",
		Component: components.ComponentOfChatModel,
	})

	var opts []model.Option
	if !r.cfg.NoSampling {
		opts = append(opts, model.WithTemperature(r.cfg.Temperature), model.WithTopP(r.cfg.TopP))
	}
	out, err := r.chat.Generate(ctx, msgs, opts...)
	if err != nil {
		return "", err
	}
	if out == nil || strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("responder: empty completion")
	}
	return strings.TrimSpace(out.Content), nil
}

func (r *Responder) historyMessages(current *schema.Message, history []Turn) []*schema.Message {
	if r.cfg.HistoryDepth == 0 || len(history) == 0 {
		return nil
	}
	if len(history) > r.cfg.HistoryDepth {
		history = history[len(history)-r.cfg.HistoryDepth:]
	}
	msgs := make([]*schema.Message, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case RoleUser:
			msgs = append(msgs, schema.UserMessage(t.Content))
		case RoleAssistant:
			msgs = append(msgs, schema.AssistantMessage(t.Content, nil))
		}
	}
	return budget.TrimHistory([]*schema.Message{current}, msgs, r.cfg.MaxContextTokens)
}
