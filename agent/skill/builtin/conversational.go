package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	llmx "github.com/jarvisd/jarvis/agent/llm"
	skillx "github.com/jarvisd/jarvis/agent/skill"
)

type ConversationalOutput struct {
	Reply string `json:"reply"`
}

// ConversationalSkill answers small talk and anything no other skill claims.
// With a chat model it generates a reply; without one it falls back to a fixed
// acknowledgement so the pipeline still completes.
type ConversationalSkill struct {
	runner       compose.Runnable[map[string]any, *schema.Message]
	systemPrompt string
}

var _ skillx.Skill = (*ConversationalSkill)(nil)

// NewConversationalSkill compiles the chat pipeline. A nil chat model yields
// the degraded fixed-reply variant.
func NewConversationalSkill(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*ConversationalSkill, error) {
	s := &ConversationalSkill{systemPrompt: systemPrompt}
	if chatModel != nil {
		runner, err := llmx.CompileChatGraph(ctx, chatModel, "skill.conversational_graph")
		if err != nil {
			return nil, fmt.Errorf("%w: compile conversational graph: %v", contractx.ErrModelInvoke, err)
		}
		s.runner = runner
	}
	return s, nil
}

func (s *ConversationalSkill) Name() string { return contractx.IntentConversational }

func (s *ConversationalSkill) Description() string {
	return "Reply conversationally to anything that is not a task."
}

func (s *ConversationalSkill) Schema() skillx.Schema {
	return skillx.Schema{
		"text":           {Type: skillx.TypeString, Desc: "what the user said", Required: true},
		"memory_context": {Type: skillx.TypeString, Desc: "relevant history and profile context"},
	}
}

func (s *ConversationalSkill) Invoke(ctx context.Context, params map[string]any) (any, error) {
	text, err := stringParam(params, "text")
	if err != nil {
		return nil, err
	}

	if s.runner == nil {
		return ConversationalOutput{Reply: "I heard you, but my language model is offline right now."}, nil
	}

	memoryContext := ""
	if raw, ok := params["memory_context"].(string); ok {
		memoryContext = raw
	}

	payload, err := json.Marshal(map[string]any{
		"user_message":   text,
		"memory_context": memoryContext,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal chat payload: %v", contractx.ErrValidation, err)
	}

	msg, err := s.runner.Invoke(ctx, map[string]any{
		"system": s.systemPrompt,
		"input":  string(payload),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: conversational invoke: %v", contractx.ErrModelInvoke, err)
	}
	return ConversationalOutput{Reply: strings.TrimSpace(msg.Content)}, nil
}
