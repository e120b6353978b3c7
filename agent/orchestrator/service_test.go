package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	intentx "github.com/jarvisd/jarvis/agent/intent"
	memoryx "github.com/jarvisd/jarvis/agent/memory"
	personax "github.com/jarvisd/jarvis/agent/persona"
	plannerx "github.com/jarvisd/jarvis/agent/planner"
	skillx "github.com/jarvisd/jarvis/agent/skill"
	builtinx "github.com/jarvisd/jarvis/agent/skill/builtin"
)

type fakeOpenApp struct {
	err   error
	calls int
}

func (f *fakeOpenApp) Name() string        { return "open_app" }
func (f *fakeOpenApp) Description() string { return "open an application" }
func (f *fakeOpenApp) Schema() skillx.Schema {
	return skillx.Schema{
		"app_name": {Type: skillx.TypeString, Desc: "application to open", Required: true},
	}
}
func (f *fakeOpenApp) Invoke(_ context.Context, params map[string]any) (any, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return builtinx.OpenAppOutput{App: params["app_name"].(string), Launched: true}, nil
}

type fakeWebSearch struct {
	calls   int
	queries []string
}

func (f *fakeWebSearch) Name() string        { return "web_search" }
func (f *fakeWebSearch) Description() string { return "search the web" }
func (f *fakeWebSearch) Schema() skillx.Schema {
	return skillx.Schema{
		"query": {Type: skillx.TypeString, Desc: "search query", Required: true},
	}
}
func (f *fakeWebSearch) Invoke(_ context.Context, params map[string]any) (any, error) {
	f.calls++
	query := params["query"].(string)
	f.queries = append(f.queries, query)
	return builtinx.SearchOutput{
		Query:   query,
		Results: []builtinx.SearchResult{{Title: "Result", Link: "https://example.com", Snippet: "snippet"}},
	}, nil
}

type fixture struct {
	orchestrator *Orchestrator
	memory       *memoryx.Manager
	openApp      *fakeOpenApp
	webSearch    *fakeWebSearch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := skillx.NewRegistry()
	openApp := &fakeOpenApp{}
	webSearch := &fakeWebSearch{}
	registry.MustRegister(openApp)
	registry.MustRegister(webSearch)

	conversational, err := builtinx.NewConversationalSkill(ctx, nil, "")
	if err != nil {
		t.Fatalf("conversational skill: %v", err)
	}
	registry.MustRegister(conversational)

	mem := memoryx.NewManager(memoryx.NewInMemoryStore(), nil, nil)
	t.Cleanup(func() { _ = mem.Close() })

	resolver, err := intentx.NewResolver(ctx, nil, "", registry)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	planner, err := plannerx.New(registry)
	if err != nil {
		t.Fatalf("planner: %v", err)
	}
	dispatcher, err := skillx.NewDispatcher(registry)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	extractor, err := personax.NewExtractor(ctx, nil, "")
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	o, err := New(mem, resolver, planner, dispatcher, extractor,
		WithClock(func() time.Time { return fixed }),
	)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	return &fixture{orchestrator: o, memory: mem, openApp: openApp, webSearch: webSearch}
}

func TestHandleMessageFailingStepDoesNotAbortIndependentSteps(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.openApp.err = errors.New("application not installed")

	result, err := fx.orchestrator.HandleMessage(context.Background(), "u1", "s1", "open chrome and search for AI news")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}

	steps := result.Plan.Steps
	if len(steps) != 2 {
		t.Fatalf("expected two steps, got %d", len(steps))
	}
	if steps[0].Skill != "open_app" || steps[0].Status != contractx.StepFailed {
		t.Fatalf("open_app should fail, got %s %s", steps[0].Skill, steps[0].Status)
	}
	if steps[1].Skill != "web_search" || steps[1].Status != contractx.StepSucceeded {
		t.Fatalf("web_search should still run, got %s %s", steps[1].Skill, steps[1].Status)
	}
	if fx.webSearch.calls != 1 {
		t.Fatalf("web_search should be invoked once, got %d", fx.webSearch.calls)
	}
	if !strings.Contains(result.Reply, "failed") {
		t.Fatalf("reply should mention the failed step, got %q", result.Reply)
	}
}

func TestHandleMessageDependentStepSkippedAfterFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	fx.openApp.err = errors.New("application not installed")

	result, err := fx.orchestrator.HandleMessage(context.Background(), "u1", "s1", "open chrome then search for cat videos")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}

	steps := result.Plan.Steps
	if len(steps) != 2 {
		t.Fatalf("expected two steps, got %d", len(steps))
	}
	if steps[1].Status != contractx.StepSkipped {
		t.Fatalf("dependent step should be skipped, got %s", steps[1].Status)
	}
	if fx.webSearch.calls != 0 {
		t.Fatalf("skipped step must not invoke the handler, got %d calls", fx.webSearch.calls)
	}
}

func TestHandleMessageConversationalTurnAppendsOneTurn(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	result, err := fx.orchestrator.HandleMessage(ctx, "u1", "s1", "how are you doing today")
	if err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if result.Reply == "" {
		t.Fatal("expected a non-empty reply")
	}
	if len(result.Plan.Steps) != 1 || result.Plan.Steps[0].Skill != contractx.IntentConversational {
		t.Fatalf("expected a single conversational step, got %+v", result.Plan.SkillsUsed())
	}

	turns, err := fx.orchestrator.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected exactly one history turn, got %d", len(turns))
	}
	if turns[0].AssistantReply != result.Reply {
		t.Fatalf("stored reply mismatch: %q vs %q", turns[0].AssistantReply, result.Reply)
	}

	profile, err := fx.memory.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if len(profile.Preferences) != 0 || len(profile.Facts) != 0 {
		t.Fatalf("small talk must not create records, got %+v", profile)
	}
}

func TestHandleMessagePersistsExtractedName(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.orchestrator.HandleMessage(ctx, "u1", "s1", "my name is Arthit"); err != nil {
		t.Fatalf("handle message: %v", err)
	}

	profile, err := fx.memory.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Facts["name"] != "Arthit" {
		t.Fatalf("expected stored name fact, got %+v", profile.Facts)
	}
}

func TestHandleMessageRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	if _, err := fx.orchestrator.HandleMessage(context.Background(), "u1", "s1", "   "); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected invalid message error, got %v", err)
	}
	if _, err := fx.orchestrator.HandleMessage(context.Background(), "", "s1", "hello"); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("expected invalid user error, got %v", err)
	}
}

func TestClearHistoryKeepsProfile(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.orchestrator.HandleMessage(ctx, "u1", "s1", "my name is Arthit"); err != nil {
		t.Fatalf("handle message: %v", err)
	}
	if err := fx.orchestrator.ClearHistory(ctx, "u1"); err != nil {
		t.Fatalf("clear history: %v", err)
	}

	turns, err := fx.orchestrator.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("history should be empty, got %d turns", len(turns))
	}

	profile, err := fx.memory.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Facts["name"] != "Arthit" {
		t.Fatalf("clearing history must keep the profile, got %+v", profile.Facts)
	}
}
