package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"calendar-agent/internal/domain"
	"calendar-agent/internal/logging"
)

const (
	systemPreamble = "You are a helpful assistant."

	// DefaultStore receives persisted turns.
	DefaultStore = "gpt4oContext1.json"
)

// ClearedStores are emptied after every turn that is not persisted.
var ClearedStores = []string{"gpt4oContext1.json", "gpt4oMiniContext1.json", "gpt3pt5TurboContext1.json"}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type ContextStore interface {
	Merge(ctx context.Context, name string, entries domain.ContextEntries) error
	Reset(ctx context.Context, name string) error
}

// Conversation is the process-lifetime transcript exchanged with the model.
// Turns are serialised; the stores it writes are not coordinated with other
// processes.
type Conversation struct {
	llm    LLMClient
	store  ContextStore
	model  string
	name   string
	logger *slog.Logger

	mu         sync.Mutex
	transcript domain.Transcript
}

type ConversationOption func(*Conversation)

// WithStoreName changes the store persisted turns are merged into.
func WithStoreName(name string) ConversationOption {
	return func(c *Conversation) {
		if name = strings.TrimSpace(name); name != "" {
			c.name = name
		}
	}
}

func WithConversationLogger(logger *slog.Logger) ConversationOption {
	return func(c *Conversation) {
		c.logger = logger
	}
}

func NewConversation(llm LLMClient, store ContextStore, model string, opts ...ConversationOption) (*Conversation, error) {
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: context store must not be nil")
	}
	model = strings.TrimSpace(model)
	if model == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	c := &Conversation{llm: llm, store: store, model: model, name: DefaultStore}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger)
	return c, nil
}

// Send appends message to the transcript, asks the model for a reply and
// appends that too. When persist is set the turn is merged into the named
// store; otherwise ClearedStores are reset. A failed model call leaves the
// user message in place and writes nothing.
func (c *Conversation) Send(ctx context.Context, message string, persist bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	padded := message + " "
	if len(c.transcript) == 0 {
		c.transcript = append(c.transcript, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPreamble})
	}
	c.transcript = append(c.transcript, domain.ChatMessage{Role: domain.RoleUser, Content: padded})

	reply, err := c.llm.Chat(ctx, c.model, c.transcript.Clone())
	if err != nil {
		return "", err
	}
	c.transcript = append(c.transcript, domain.ChatMessage{Role: domain.RoleAssistant, Content: reply})

	if persist {
		if err := c.store.Merge(ctx, c.name, domain.ContextEntries{padded: reply}); err != nil {
			return "", fmt.Errorf("usecase: persist turn: %w", err)
		}
		c.logger.Debug("conversation.turn_saved", "store", c.name)
	} else if err := c.reset(ctx, ClearedStores...); err != nil {
		return "", err
	}

	c.logger.Debug("conversation.reply", "transcript", transcriptDump(c.transcript))
	return reply, nil
}

// Reset empties each named store.
func (c *Conversation) Reset(ctx context.Context, names ...string) error {
	return c.reset(ctx, names...)
}

func (c *Conversation) reset(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := c.store.Reset(ctx, name); err != nil {
			return fmt.Errorf("usecase: reset %s: %w", name, err)
		}
	}
	return nil
}

// Transcript returns a copy of the messages exchanged so far.
func (c *Conversation) Transcript() domain.Transcript {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Clone()
}

func transcriptDump(t domain.Transcript) string {
	var b strings.Builder
	for _, m := range t {
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("USER: ")
		case domain.RoleAssistant:
			b.WriteString("BOT: ")
		default:
			continue
		}
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}
