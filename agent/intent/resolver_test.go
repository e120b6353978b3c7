package intent

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	skillx "github.com/jarvisd/jarvis/agent/skill"
)

type fakeToolCallingModel struct {
	responses []*schema.Message
	err       error
	idx       int
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

type stubSkill struct {
	name string
}

func (s stubSkill) Name() string          { return s.name }
func (s stubSkill) Description() string   { return s.name }
func (s stubSkill) Schema() skillx.Schema { return skillx.Schema{} }
func (s stubSkill) Invoke(context.Context, map[string]any) (any, error) {
	return nil, nil
}

func testRegistry() *skillx.Registry {
	registry := skillx.NewRegistry()
	for _, name := range []string{"open_app", "web_search", "run_command", "read_file", "write_file", "calculate", "conversational"} {
		registry.MustRegister(stubSkill{name: name})
	}
	return registry
}

func utterance(text string) contractx.Utterance {
	return contractx.Utterance{ID: "utt-1", UserID: "u1", Text: text}
}

func TestResolveByRulesSingleCommand(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("open chrome"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 {
		t.Fatalf("expected one intent, got %d", len(intents))
	}
	if intents[0].Label != "open_app" {
		t.Fatalf("expected open_app, got %s", intents[0].Label)
	}
	if app, _ := intents[0].SlotValue("app_name"); app != "chrome" {
		t.Fatalf("expected app_name=chrome, got %q", app)
	}
}

func TestResolveSplitsConjunctiveCommands(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("open chrome and search for AI news"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("expected two intents, got %d: %+v", len(intents), intents)
	}
	if intents[0].Label != "open_app" || intents[1].Label != "web_search" {
		t.Fatalf("unexpected labels: %s, %s", intents[0].Label, intents[1].Label)
	}
	if intents[0].DependsOnPrev || intents[1].DependsOnPrev {
		t.Fatal("conjunctive clauses must stay independent")
	}
}

func TestResolveSequentialSeparatorMarksDependency(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("open chrome then search for cat videos"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("expected two intents, got %d", len(intents))
	}
	if intents[0].DependsOnPrev {
		t.Fatal("first clause must not depend on anything")
	}
	if !intents[1].DependsOnPrev {
		t.Fatal("second clause should depend on the first")
	}
}

func TestResolveKeepsSearchPhraseIntact(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("search for fish and chips"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != "web_search" {
		t.Fatalf("expected one web_search intent, got %+v", intents)
	}
	if q, _ := intents[0].SlotValue("query"); q != "fish and chips" {
		t.Fatalf("query should keep the conjunction, got %q", q)
	}
}

func TestResolveDowngradesWithoutModel(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("tell me a joke"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != contractx.IntentConversational {
		t.Fatalf("expected a conversational fallback, got %+v", intents)
	}
	if text, _ := intents[0].SlotValue("text"); text != "tell me a joke" {
		t.Fatalf("fallback should carry the utterance, got %q", text)
	}
}

func TestResolveConsultsModelForAmbiguousInput(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"intents":[{"label":"web_search","confidence":0.88,"slots":{"query":"weather in bangkok"}}]}`},
		},
	}
	r, err := NewResolver(context.Background(), fake, "resolver prompt", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("what's it like outside in bangkok"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != "web_search" {
		t.Fatalf("expected model-resolved web_search, got %+v", intents)
	}
	if q, _ := intents[0].SlotValue("query"); q != "weather in bangkok" {
		t.Fatalf("unexpected query slot %q", q)
	}
}

func TestResolveKeepsPlannerAliasLabels(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"intents":[{"label":"launch_app","confidence":0.9,"slots":{"app_name":"spotify"}},{"label":"play_media","confidence":0.9,"slots":{"query":"lo-fi beats"},"depends_on_previous":true}]}`},
		},
	}
	r, err := NewResolver(context.Background(), fake, "resolver prompt", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("put on some music for me"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 2 {
		t.Fatalf("expected two intents, got %+v", intents)
	}
	if intents[0].Label != "launch_app" || intents[1].Label != "play_media" {
		t.Fatalf("alias labels must survive sanitization, got %s, %s", intents[0].Label, intents[1].Label)
	}
	if !intents[1].DependsOnPrev {
		t.Fatal("dependency flag should survive sanitization")
	}
}

func TestResolveSanitizesUnknownModelLabel(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Content: `{"intents":[{"label":"summon_demon","confidence":0.99}]}`},
		},
	}
	r, err := NewResolver(context.Background(), fake, "resolver prompt", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("do the thing"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != contractx.IntentConversational {
		t.Fatalf("unknown label should degrade to conversational, got %+v", intents)
	}
}

func TestResolveFallsBackWhenModelFails(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("model down")}
	r, err := NewResolver(context.Background(), fake, "resolver prompt", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("hmm not sure what I want"), nil)
	if err != nil {
		t.Fatalf("model failure must not surface as an error: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != contractx.IntentConversational {
		t.Fatalf("expected conversational fallback, got %+v", intents)
	}
}

func TestResolveEmptyUtteranceIsConversational(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("   "), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != contractx.IntentConversational {
		t.Fatalf("expected conversational intent for empty input, got %+v", intents)
	}
}

func TestResolveArithmetic(t *testing.T) {
	t.Parallel()

	r, err := NewResolver(context.Background(), nil, "", testRegistry())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	intents, err := r.Resolve(context.Background(), utterance("12 * (3 + 4)"), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(intents) != 1 || intents[0].Label != "calculate" {
		t.Fatalf("expected calculate intent, got %+v", intents)
	}
	if expr, _ := intents[0].SlotValue("expression"); expr != "12 * (3 + 4)" {
		t.Fatalf("unexpected expression slot %q", expr)
	}
}
