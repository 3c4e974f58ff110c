// Package chat maintains the conversation transcript and wraps the assistant
// call with timeout, cancellation, and delayed error surfacing.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fairlens/backend/internal/logging"
	"github.com/fairlens/backend/internal/models"
)

// Asker is the upstream boundary: a primary JSON call and one fallback
// encoding of the same call.
type Asker interface {
	Ask(ctx context.Context, prompt string) (string, error)
	AskForm(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyPrompt rejects blank prompts before any network activity.
var ErrEmptyPrompt = errors.New("prompt is empty")

// TimeoutMessage is rendered when the hard timeout cancels the request.
const TimeoutMessage = "The assistant timed out. Please try again."

// Options tunes the request lifecycle. Zero values fall back to defaults.
type Options struct {
	// HardTimeout cancels the in-flight call if no settlement occurs first.
	HardTimeout time.Duration
	// GateWindow is the delay before transient errors may be surfaced.
	// Errors observed earlier are stashed and only rendered if the gate
	// elapses without a success.
	GateWindow time.Duration
}

func (o *Options) applyDefaults() {
	if o.HardTimeout <= 0 {
		o.HardTimeout = 120 * time.Second
	}
	if o.GateWindow <= 0 {
		o.GateWindow = 4 * time.Second
	}
}

// Conversation holds an append-only message list. The assistant bubble of each
// request transitions pending -> exactly one of {resolved, error}; no message
// is removed except by Reset.
type Conversation struct {
	client Asker
	opts   Options
	log    zerolog.Logger

	mu       sync.Mutex
	messages []models.ChatMessage
}

// request tracks the settlement state of one Ask invocation. The stashed
// error belongs to the request, not the conversation: a later Ask must not
// be able to discard an earlier request's pending settlement.
type request struct {
	assistantID string
	gateElapsed bool
	settled     bool
	delayed     string // gated error awaiting the gate callback
}

// NewConversation creates an empty conversation over the given upstream.
func NewConversation(client Asker, opts Options) *Conversation {
	opts.applyDefaults()
	return &Conversation{
		client: client,
		opts:   opts,
		log:    logging.NewLogger("chat"),
	}
}

// Messages returns a snapshot of the transcript.
func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Reset drops the whole transcript.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

// Ask submits a prompt and blocks until the request settles or times out. The
// transcript is updated as the request progresses; the returned text or error
// mirrors the final settlement.
func (c *Conversation) Ask(ctx context.Context, prompt string) (string, error) {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return "", ErrEmptyPrompt
	}

	req := c.begin(trimmed)

	reqCtx, cancel := context.WithTimeout(ctx, c.opts.HardTimeout)
	defer cancel()

	// The gate timer is deliberately not stopped on failure: a final error
	// stashed before the gate is rendered by this callback when it fires.
	gate := time.AfterFunc(c.opts.GateWindow, func() { c.onGate(req) })

	text, err := c.client.Ask(reqCtx, trimmed)
	if err != nil {
		// Transient: stash, keep the bubble pending, try the fallback
		// encoding before treating the failure as final.
		c.stash(req, c.userMessage(reqCtx, err))
		text, err = c.client.AskForm(reqCtx, trimmed)
	}

	if err == nil {
		gate.Stop()
		c.resolve(req, text)
		return text, nil
	}

	msg := c.userMessage(reqCtx, err)
	c.fail(req, msg)
	return "", errors.New(msg)
}

// begin appends the user message and the pending assistant bubble.
func (c *Conversation) begin(prompt string) *request {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.messages = append(c.messages, models.ChatMessage{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   prompt,
		CreatedAt: now,
	})

	assistantID := uuid.New().String()
	c.messages = append(c.messages, models.ChatMessage{
		ID:        assistantID,
		Role:      models.RoleAssistant,
		Pending:   true,
		CreatedAt: now,
	})

	return &request{assistantID: assistantID}
}

// onGate fires once the gate window elapses. If no success has arrived and an
// error was stashed, it is rendered now.
func (c *Conversation) onGate(req *request) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req.gateElapsed = true
	if req.settled || req.delayed == "" {
		return
	}
	msg := req.delayed
	req.delayed = ""
	c.settleLocked(req, msg, true)
}

// stash records an error without rendering it. After the gate it is rendered
// immediately instead.
func (c *Conversation) stash(req *request, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.settled {
		return
	}
	req.delayed = msg
}

// resolve writes the successful response into the pending bubble and discards
// any captured delayed error.
func (c *Conversation) resolve(req *request, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.settled {
		c.log.Debug().Msg("late success ignored; bubble already settled")
		return
	}
	req.delayed = ""
	c.settleLocked(req, text, false)
}

// fail records the final failure: rendered immediately once the gate has
// elapsed, stashed for the gate callback otherwise.
func (c *Conversation) fail(req *request, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.settled {
		return
	}
	if req.gateElapsed {
		req.delayed = ""
		c.settleLocked(req, msg, true)
		return
	}
	req.delayed = msg
}

// settleLocked performs the single write a pending bubble ever receives.
func (c *Conversation) settleLocked(req *request, content string, isErr bool) {
	req.settled = true
	for i := range c.messages {
		if c.messages[i].ID != req.assistantID {
			continue
		}
		c.messages[i].Content = content
		c.messages[i].Pending = false
		c.messages[i].Error = isErr
		return
	}
}

// userMessage maps an upstream failure to the user-facing text, distinguishing
// the timeout class.
func (c *Conversation) userMessage(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return TimeoutMessage
	}
	return "The assistant request failed: " + err.Error()
}
