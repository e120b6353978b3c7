package contract

import (
	"time"
)

// Utterance is one raw user input. Immutable once received.
type Utterance struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Slot is one extracted parameter. Slots keep their detection order, which
// matters for first-detected-wins conflict resolution.
type Slot struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Intent is a classified user goal with extracted slots.
type Intent struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Slots      []Slot  `json:"slots,omitempty"`

	// DependsOnPrev marks an intent that must not run until the previous
	// intent's step finished successfully ("open X, then search Y").
	DependsOnPrev bool `json:"depends_on_previous,omitempty"`
}

// SlotValue returns the first slot with the given name.
func (in Intent) SlotValue(name string) (string, bool) {
	for _, s := range in.Slots {
		if s.Name == name {
			return s.Value, true
		}
	}
	return "", false
}

// IntentConversational is the label every unclassifiable or low-confidence
// utterance degrades to. The pipeline never stalls on it.
const IntentConversational = "conversational"

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeRejected  OutcomeStatus = "rejected"
	OutcomeError     OutcomeStatus = "error"
	OutcomeTimeout   OutcomeStatus = "timeout"
	OutcomeSkipped   OutcomeStatus = "skipped"
)

// Outcome is the normalized envelope every skill invocation produces,
// whatever happened inside the handler.
type Outcome struct {
	Status  OutcomeStatus `json:"status"`
	Result  any           `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Step is one skill invocation inside a Plan.
type Step struct {
	Skill  string         `json:"skill"`
	Params map[string]any `json:"params"`

	// DependsOn is the index of an earlier step this one hard-depends on,
	// or -1 when independent.
	DependsOn int `json:"depends_on"`

	Status  StepStatus `json:"status"`
	Reason  string     `json:"reason,omitempty"`
	Outcome *Outcome   `json:"outcome,omitempty"`

	// IntentLabel records which intent produced the step, for history logging.
	IntentLabel string `json:"intent_label"`
}

// Plan is the ordered sequence of steps for a single turn. It is owned by the
// turn and discarded after execution; only history logging survives it.
type Plan struct {
	TurnID string  `json:"turn_id"`
	Steps  []*Step `json:"steps"`
}

// SkillsUsed lists the skill names of all steps in declared order.
func (p *Plan) SkillsUsed() []string {
	if p == nil {
		return nil
	}
	names := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		names = append(names, s.Skill)
	}
	return names
}

type RecordKind string

const (
	KindPreference RecordKind = "preference"
	KindFact       RecordKind = "fact"
)

// MemoryRecord is one durable preference or fact. Writes are last-write-wins
// per (user id, kind, key).
type MemoryRecord struct {
	Kind      RecordKind `json:"kind"`
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	UserID    string     `json:"user_id"`
	CreatedAt time.Time  `json:"created_at"`
}

// HistoryTurn is one append-only conversation turn row. Turns are never
// overwritten; only an explicit clear removes them.
type HistoryTurn struct {
	TurnID         string    `json:"turn_id"`
	UserID         string    `json:"user_id"`
	UserMessage    string    `json:"user_message"`
	AssistantReply string    `json:"assistant_reply"`
	IntentLabel    string    `json:"intent_label,omitempty"`
	SkillsUsed     []string  `json:"skills_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SearchHit is one ranked result from semantic history search.
type SearchHit struct {
	Turn  HistoryTurn `json:"turn"`
	Score float64     `json:"score"`
}

// UserProfile aggregates all preference/fact records for one user. It is a
// derived view, recomputed on read, never stored.
type UserProfile struct {
	UserID      string            `json:"user_id"`
	Preferences map[string]string `json:"preferences"`
	Facts       map[string]string `json:"facts"`
}

// Preference returns a preference value, falling back to facts so a stored
// fact can serve as a planning default too.
func (p UserProfile) Preference(key string) (string, bool) {
	if v, ok := p.Preferences[key]; ok {
		return v, true
	}
	v, ok := p.Facts[key]
	return v, ok
}
