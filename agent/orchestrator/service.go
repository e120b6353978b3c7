package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	nodex "github.com/jarvisd/jarvis/agent/nodes"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidUser    = nodex.ErrInvalidUser
)

// Result is one handled turn as seen by callers.
type Result struct {
	Reply  string
	TurnID string
	Plan   *contractx.Plan
}

// Orchestrator runs the per-turn pipeline: context read, intent resolution,
// planning, dispatch, reply synthesis, history write, profile extraction.
type Orchestrator struct {
	memory     contractx.Memory
	resolver   contractx.Resolver
	planner    contractx.Planner
	dispatcher contractx.Dispatcher
	extractor  contractx.Extractor

	chat       nodex.ChatRunner
	chatPrompt string

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

// Option tweaks orchestrator construction. Used by tests to pin time.
type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithChatRunner installs the free-text pipeline used for reply synthesis.
// Without it task replies fall back to the deterministic summary.
func WithChatRunner(chat nodex.ChatRunner, systemPrompt string) Option {
	return func(o *Orchestrator) {
		o.chat = chat
		o.chatPrompt = systemPrompt
	}
}

func New(
	memory contractx.Memory,
	resolver contractx.Resolver,
	planner contractx.Planner,
	dispatcher contractx.Dispatcher,
	extractor contractx.Extractor,
	opts ...Option,
) (*Orchestrator, error) {
	if memory == nil {
		return nil, errors.New("memory is required")
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if planner == nil {
		return nil, errors.New("planner is required")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	o := &Orchestrator{
		memory:     memory,
		resolver:   resolver,
		planner:    planner,
		dispatcher: dispatcher,
		extractor:  extractor,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	graphRunner, err := o.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// HandleMessage runs one full turn for the user and returns the reply.
func (o *Orchestrator) HandleMessage(ctx context.Context, userID, sessionID, text string) (Result, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		UserID:    userID,
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Reply: out.Reply, TurnID: out.TurnID, Plan: out.Plan}, nil
}

// SearchHistory exposes semantic history search to callers.
func (o *Orchestrator) SearchHistory(ctx context.Context, userID, query string, limit int) ([]contractx.SearchHit, error) {
	return o.memory.Search(ctx, userID, query, limit)
}

// History returns the user's most recent turns, newest first.
func (o *Orchestrator) History(ctx context.Context, userID string, limit int) ([]contractx.HistoryTurn, error) {
	return o.memory.RecentTurns(ctx, userID, limit)
}

// ClearHistory forgets the user's conversation history. Preferences and facts
// are kept.
func (o *Orchestrator) ClearHistory(ctx context.Context, userID string) error {
	return o.memory.ClearHistory(ctx, userID)
}
