package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	llmx "github.com/jarvisd/jarvis/agent/llm"
	plannerx "github.com/jarvisd/jarvis/agent/planner"
	skillx "github.com/jarvisd/jarvis/agent/skill"
)

const (
	defaultConfidenceThreshold = 0.7
	defaultModelTimeout        = 20 * time.Second
	historyWindow              = 5
)

type llmIntent struct {
	Label         string            `json:"label"`
	Confidence    float64           `json:"confidence"`
	Slots         map[string]string `json:"slots,omitempty"`
	DependsOnPrev bool              `json:"depends_on_previous,omitempty"`
}

type resolverLLMOutput struct {
	Intents []llmIntent `json:"intents"`
}

type Option func(*Resolver)

func WithConfidenceThreshold(t float64) Option {
	return func(r *Resolver) {
		if t > 0 && t <= 1 {
			r.threshold = t
		}
	}
}

func WithModelTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.modelTimeout = d
		}
	}
}

// Resolver classifies utterances. Heuristic rules run first; clauses the
// rules are unsure about go to the model. Resolution is total: model failure,
// timeout, or schema violations degrade to a conversational fallback intent
// carrying the full utterance.
type Resolver struct {
	runner       compose.Runnable[map[string]any, resolverLLMOutput]
	systemPrompt string
	skillDigest  string
	knownLabels  map[string]struct{}
	threshold    float64
	modelTimeout time.Duration
}

var _ contractx.Resolver = (*Resolver)(nil)

// NewResolver builds a resolver over the registered skills. A nil chat model
// yields a rules-only resolver; anything below threshold then falls straight
// back to conversational.
func NewResolver(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	registry *skillx.Registry,
	opts ...Option,
) (*Resolver, error) {
	if registry == nil {
		return nil, errors.New("skill registry is required")
	}

	r := &Resolver{
		systemPrompt: systemPrompt,
		skillDigest:  skillDigest(registry),
		knownLabels:  knownLabels(registry),
		threshold:    defaultConfidenceThreshold,
		modelTimeout: defaultModelTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if chatModel != nil {
		runner, err := llmx.CompileStructuredGraph[resolverLLMOutput](ctx, chatModel, "intent.resolver_graph")
		if err != nil {
			return nil, fmt.Errorf("%w: compile resolver graph: %v", contractx.ErrModelInvoke, err)
		}
		r.runner = runner
	}

	return r, nil
}

// Resolve returns at least one intent for every utterance. The error is
// non-nil only when the caller's context is done.
func (r *Resolver) Resolve(ctx context.Context, utt contractx.Utterance, recent []contractx.HistoryTurn) ([]contractx.Intent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(utt.Text)
	if text == "" {
		return []contractx.Intent{conversationalIntent(utt.Text)}, nil
	}

	ruleIntents := r.resolveByRules(text)
	if allConfident(ruleIntents, r.threshold) {
		return ruleIntents, nil
	}

	if r.runner == nil {
		return r.downgrade(ruleIntents, text), nil
	}

	modelIntents, err := r.resolveByModel(ctx, text, recent)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Str("user_id", utt.UserID).Msg("intent model unavailable, using fallback")
		return r.downgrade(ruleIntents, text), nil
	}

	return modelIntents, nil
}

func (r *Resolver) resolveByRules(text string) []contractx.Intent {
	clauses := splitClauses(text)
	intents := make([]contractx.Intent, 0, len(clauses))
	for _, c := range clauses {
		in := classifyClause(c.text)
		in.DependsOnPrev = c.dependsOnPrev
		intents = append(intents, in)
	}
	if len(intents) == 0 {
		intents = append(intents, conversationalIntent(text))
	}
	return intents
}

func (r *Resolver) resolveByModel(ctx context.Context, text string, recent []contractx.HistoryTurn) ([]contractx.Intent, error) {
	payload := map[string]any{
		"utterance":      text,
		"recent_history": summarizeHistory(recent),
		"skills":         r.skillDigest,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal resolver payload: %v", contractx.ErrValidation, err)
	}

	modelCtx, cancel := context.WithTimeout(ctx, r.modelTimeout)
	defer cancel()

	out, err := r.runner.Invoke(modelCtx, map[string]any{
		"system": r.systemPrompt,
		"input":  string(input),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: resolver invoke: %v", contractx.ErrModelInvoke, err)
	}
	if len(out.Intents) == 0 {
		return nil, fmt.Errorf("%w: resolver returned no intents", contractx.ErrSchemaViolation)
	}

	intents := make([]contractx.Intent, 0, len(out.Intents))
	for _, li := range out.Intents {
		intents = append(intents, r.sanitize(li, text))
	}
	return intents, nil
}

// sanitize downgrades unknown labels and sub-threshold classifications to the
// conversational fallback so the pipeline never stalls on model output.
func (r *Resolver) sanitize(li llmIntent, fullText string) contractx.Intent {
	label := strings.TrimSpace(li.Label)
	_, known := r.knownLabels[label]
	if !known || li.Confidence < r.threshold {
		return conversationalIntent(fullText)
	}

	slots := make([]contractx.Slot, 0, len(li.Slots))
	names := make([]string, 0, len(li.Slots))
	for name := range li.Slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		slots = append(slots, contractx.Slot{Name: name, Value: li.Slots[name]})
	}

	return contractx.Intent{
		Label:         label,
		Confidence:    li.Confidence,
		Slots:         slots,
		DependsOnPrev: li.DependsOnPrev,
	}
}

// downgrade replaces every sub-threshold intent with a conversational one
// carrying its clause text. When nothing actionable survives, the whole
// utterance collapses into a single conversational intent.
func (r *Resolver) downgrade(intents []contractx.Intent, fullText string) []contractx.Intent {
	out := make([]contractx.Intent, 0, len(intents))
	actionable := false
	for _, in := range intents {
		if in.Confidence < r.threshold {
			text, _ := in.SlotValue("text")
			if text == "" {
				text = fullText
			}
			in = conversationalIntent(text)
		}
		if isActionable(in) {
			actionable = true
		}
		out = append(out, in)
	}
	if !actionable {
		return []contractx.Intent{conversationalIntent(fullText)}
	}
	return out
}

func allConfident(intents []contractx.Intent, threshold float64) bool {
	for _, in := range intents {
		if in.Confidence < threshold {
			return false
		}
	}
	return len(intents) > 0
}

func summarizeHistory(recent []contractx.HistoryTurn) []string {
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	lines := make([]string, 0, len(recent)*2)
	for _, turn := range recent {
		lines = append(lines,
			"user: "+turn.UserMessage,
			"assistant: "+turn.AssistantReply,
		)
	}
	return lines
}

func skillDigest(registry *skillx.Registry) string {
	infos := registry.ToolInfos()
	parts := make([]string, 0, len(infos))
	for _, info := range infos {
		parts = append(parts, fmt.Sprintf("%s: %s", info.Name, info.Desc))
	}
	return strings.Join(parts, "\n")
}

// knownLabels is the sanitization whitelist: everything the planner can
// route, plus any registered skill name and the conversational fallback.
// Alias labels like "launch_app" and "play_media" must survive here or the
// model's output for them would degrade to conversational.
func knownLabels(registry *skillx.Registry) map[string]struct{} {
	labels := make(map[string]struct{})
	for _, label := range plannerx.Labels() {
		labels[label] = struct{}{}
	}
	for _, name := range registry.Names() {
		labels[name] = struct{}{}
	}
	labels[contractx.IntentConversational] = struct{}{}
	return labels
}
