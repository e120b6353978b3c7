package contract

import "context"

// Resolver classifies an utterance into one or more ordered intents. It is
// total: every input yields at least one intent, and model failure degrades to
// a conversational fallback instead of an error. The returned error is only
// non-nil for caller cancellation.
type Resolver interface {
	Resolve(ctx context.Context, utt Utterance, recent []HistoryTurn) ([]Intent, error)
}

// Planner expands resolved intents into an ordered Plan. Planning reads the
// profile passed in; it never mutates memory.
type Planner interface {
	Plan(ctx context.Context, intents []Intent, profile UserProfile) (*Plan, error)
}

// Dispatcher executes a Plan's steps in declared order, filling in statuses
// and outcome envelopes. A failing step never aborts independent later steps.
type Dispatcher interface {
	Execute(ctx context.Context, plan *Plan) error
}

// Memory is the dual-backed store. Preference/fact operations are served by
// the structured backend alone; Search consults the similarity backend and
// degrades to a recency scan when it is unavailable.
type Memory interface {
	WriteRecord(ctx context.Context, rec MemoryRecord) error
	Profile(ctx context.Context, userID string) (UserProfile, error)
	AppendTurn(ctx context.Context, turn HistoryTurn) error
	RecentTurns(ctx context.Context, userID string, limit int) ([]HistoryTurn, error)
	Search(ctx context.Context, userID string, text string, limit int) ([]SearchHit, error)
	ClearHistory(ctx context.Context, userID string) error
}

// Extractor identifies durable statements in a finished turn. It must be
// idempotent per (utterance, reply) pair.
type Extractor interface {
	Extract(ctx context.Context, utt Utterance, reply string) ([]MemoryRecord, error)
}
