package agentnode

import (
	"strings"
	"testing"
	"time"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	builtinx "github.com/jarvisd/jarvis/agent/skill/builtin"
)

func TestValidateRequest(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFn := func() time.Time { return fixed }

	state, err := ValidateRequest(GraphInput{UserID: " u1 ", SessionID: "s1", Text: "  hello  "}, nowFn)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if state.Utterance.UserID != "u1" || state.Utterance.Text != "hello" {
		t.Fatalf("input should be trimmed, got %+v", state.Utterance)
	}
	if state.Utterance.ID == "" {
		t.Fatal("utterance should get an id")
	}
	if !state.Now.Equal(fixed) {
		t.Fatalf("state should carry the clock time, got %v", state.Now)
	}

	if _, err := ValidateRequest(GraphInput{UserID: "u1", Text: "  "}, nowFn); err != ErrInvalidMessage {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
	if _, err := ValidateRequest(GraphInput{Text: "hello"}, nowFn); err != ErrInvalidUser {
		t.Fatalf("expected ErrInvalidUser, got %v", err)
	}
}

func TestRenderContext(t *testing.T) {
	t.Parallel()

	profile := contractx.UserProfile{
		UserID:      "u1",
		Preferences: map[string]string{"tone": "casual"},
		Facts:       map[string]string{"name": "Arthit"},
	}
	recent := []contractx.HistoryTurn{
		{TurnID: "t1", UserMessage: "hi", AssistantReply: "hello"},
	}
	hits := []contractx.SearchHit{
		{Turn: contractx.HistoryTurn{TurnID: "t1", UserMessage: "hi", AssistantReply: "hello"}, Score: 0.9},
		{Turn: contractx.HistoryTurn{TurnID: "t0", UserMessage: "remember the wifi password", AssistantReply: "noted"}, Score: 0.8},
	}

	rendered := renderContext(profile, recent, hits)

	for _, want := range []string{"tone: casual", "name: Arthit", "user: hi", "remember the wifi password"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("context missing %q:\n%s", want, rendered)
		}
	}
	// t1 appears in the recent window; the search section must not repeat it.
	if strings.Count(rendered, "assistant: hello") != 1 {
		t.Fatalf("duplicate turn in context:\n%s", rendered)
	}
}

func TestSummarizePlan(t *testing.T) {
	t.Parallel()

	plan := &contractx.Plan{
		TurnID: "t1",
		Steps: []*contractx.Step{
			{
				Skill:  "calculate",
				Status: contractx.StepSucceeded,
				Outcome: &contractx.Outcome{
					Status: contractx.OutcomeSucceeded,
					Result: builtinx.CalculateResult{Expression: "2+2", Result: 4},
				},
			},
			{
				Skill:  "open_app",
				Status: contractx.StepFailed,
				Reason: "application not installed",
			},
			{
				Skill:  "web_search",
				Status: contractx.StepSkipped,
				Reason: "dependency step 1 did not succeed",
			},
		},
	}

	summary := summarizePlan(plan)
	for _, want := range []string{"2+2 = 4", "failed (application not installed)", "skipped"} {
		if !strings.Contains(summary, want) {
			t.Fatalf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestFinalizeReplyNeverEmpty(t *testing.T) {
	t.Parallel()

	out, err := FinalizeReply(&GraphState{Plan: &contractx.Plan{TurnID: "t1"}})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if out.Reply == "" {
		t.Fatal("finalize must substitute a non-empty reply")
	}
	if out.TurnID != "t1" {
		t.Fatalf("output should carry the turn id, got %q", out.TurnID)
	}
}
