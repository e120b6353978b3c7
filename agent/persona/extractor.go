package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	llmx "github.com/jarvisd/jarvis/agent/llm"
)

const defaultModelTimeout = 20 * time.Second

var (
	nameRules = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bmy name is\s+([a-zA-Z][a-zA-Z'\-]*)`),
		regexp.MustCompile(`(?i)\bcall me\s+([a-zA-Z][a-zA-Z'\-]*)`),
		regexp.MustCompile(`(?i)\bi(?:'m| am)\s+called\s+([a-zA-Z][a-zA-Z'\-]*)`),
	}

	// Ordered: "informal" must match before its "formal" suffix does.
	toneRules = []struct {
		keyword string
		tone    string
	}{
		{"informal", "casual"},
		{"casual", "casual"},
		{"formal", "formal"},
		{"technical", "technical"},
		{"short answer", "concise"},
		{"be brief", "concise"},
		{"concise", "concise"},
	}
)

type llmRecords struct {
	Preferences map[string]string `json:"preferences"`
	Facts       map[string]string `json:"facts"`
}

// Extractor mines finished turns for durable preferences and facts. Rules
// catch the common phrasings; a structured model pass, when configured, covers
// the rest. Output is deterministic per input so re-running a turn cannot
// create divergent records.
type Extractor struct {
	runner       compose.Runnable[map[string]any, llmRecords]
	systemPrompt string
	modelTimeout time.Duration
}

var _ contractx.Extractor = (*Extractor)(nil)

// NewExtractor builds the extractor. A nil chat model yields a rules-only
// extractor.
func NewExtractor(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Extractor, error) {
	e := &Extractor{
		systemPrompt: systemPrompt,
		modelTimeout: defaultModelTimeout,
	}

	if chatModel != nil {
		runner, err := llmx.CompileStructuredGraph[llmRecords](ctx, chatModel, "persona.extractor_graph")
		if err != nil {
			return nil, fmt.Errorf("%w: compile extractor graph: %v", contractx.ErrModelInvoke, err)
		}
		e.runner = runner
	}
	return e, nil
}

// Extract returns the durable records found in the turn, keys sorted. Model
// failure is logged and ignored; rule-derived records still come back.
func (e *Extractor) Extract(ctx context.Context, utt contractx.Utterance, reply string) ([]contractx.MemoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found := extractByRules(utt.Text)

	if e.runner != nil {
		modelFound, err := e.extractByModel(ctx, utt.Text, reply)
		if err != nil {
			log.Warn().Err(err).Str("user_id", utt.UserID).Msg("persona model unavailable, keeping rule results")
		} else {
			// Rule hits win over model hits for the same key.
			for k, v := range modelFound.Preferences {
				if _, ok := found.Preferences[k]; !ok {
					found.Preferences[k] = v
				}
			}
			for k, v := range modelFound.Facts {
				if _, ok := found.Facts[k]; !ok {
					found.Facts[k] = v
				}
			}
		}
	}

	return toRecords(found, utt.UserID), nil
}

func extractByRules(text string) llmRecords {
	found := llmRecords{
		Preferences: make(map[string]string),
		Facts:       make(map[string]string),
	}

	for _, rule := range nameRules {
		if m := rule.FindStringSubmatch(text); m != nil {
			found.Facts["name"] = m[1]
			break
		}
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "reply") || strings.Contains(lower, "answer") ||
		strings.Contains(lower, "respond") || strings.Contains(lower, "talk") ||
		strings.Contains(lower, "keep it") || strings.Contains(lower, "be ") {
		for _, rule := range toneRules {
			if strings.Contains(lower, rule.keyword) {
				found.Preferences["tone"] = rule.tone
				break
			}
		}
	}

	return found
}

func (e *Extractor) extractByModel(ctx context.Context, text, reply string) (llmRecords, error) {
	payload := map[string]any{
		"user_message":    text,
		"assistant_reply": reply,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return llmRecords{}, fmt.Errorf("%w: marshal extractor payload: %v", contractx.ErrValidation, err)
	}

	modelCtx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	out, err := e.runner.Invoke(modelCtx, map[string]any{
		"system": e.systemPrompt,
		"input":  string(input),
	})
	if err != nil {
		return llmRecords{}, fmt.Errorf("%w: extractor invoke: %v", contractx.ErrModelInvoke, err)
	}
	if out.Preferences == nil {
		out.Preferences = make(map[string]string)
	}
	if out.Facts == nil {
		out.Facts = make(map[string]string)
	}
	return out, nil
}

func toRecords(found llmRecords, userID string) []contractx.MemoryRecord {
	records := make([]contractx.MemoryRecord, 0, len(found.Preferences)+len(found.Facts))
	records = appendSorted(records, found.Preferences, contractx.KindPreference, userID)
	records = appendSorted(records, found.Facts, contractx.KindFact, userID)
	return records
}

func appendSorted(records []contractx.MemoryRecord, kv map[string]string, kind contractx.RecordKind, userID string) []contractx.MemoryRecord {
	normalized := make(map[string]string, len(kv))
	for k, v := range kv {
		k = strings.TrimSpace(strings.ToLower(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		normalized[k] = v
	}

	keys := make([]string, 0, len(normalized))
	for k := range normalized {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		records = append(records, contractx.MemoryRecord{
			Kind:   kind,
			Key:    k,
			Value:  normalized[k],
			UserID: userID,
		})
	}
	return records
}
