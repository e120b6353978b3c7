package agentnode

import (
	"errors"
	"time"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidUser    = errors.New("user id is empty")
)

type GraphInput struct {
	UserID    string
	SessionID string
	Text      string
}

type GraphOutput struct {
	Reply  string
	TurnID string
	Plan   *contractx.Plan
}

// GraphState is the mutable per-turn state threaded through the pipeline
// nodes. It never outlives the turn.
type GraphState struct {
	Utterance contractx.Utterance
	Now       time.Time

	Profile       contractx.UserProfile
	Recent        []contractx.HistoryTurn
	MemoryContext string

	Intents []contractx.Intent
	Plan    *contractx.Plan

	Reply string
}
