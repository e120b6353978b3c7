package agentnode

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	builtinx "github.com/jarvisd/jarvis/agent/skill/builtin"
)

// ChatRunner is the compiled free-text pipeline used to phrase the final
// reply. Nil is valid and selects the deterministic summary.
type ChatRunner = compose.Runnable[map[string]any, *schema.Message]

// SynthesizeReply turns the executed plan into the assistant's reply. A pure
// conversational turn passes the skill's reply through; task turns get a model
// phrasing when a chat runner is available, with a deterministic summary as
// the fallback.
func SynthesizeReply(ctx context.Context, in *GraphState, chat ChatRunner, systemPrompt string) (*GraphState, error) {
	if in == nil || in.Plan == nil {
		return nil, fmt.Errorf("%w: graph state is missing a plan", contractx.ErrValidation)
	}

	if reply, ok := soleConversationalReply(in.Plan); ok {
		in.Reply = reply
		return in, nil
	}

	summary := summarizePlan(in.Plan)

	if chat != nil {
		reply, err := phraseWithModel(ctx, chat, systemPrompt, in, summary)
		if err != nil {
			log.Warn().Err(err).Str("user_id", in.Utterance.UserID).Msg("reply synthesis model unavailable, using summary")
		} else if reply != "" {
			in.Reply = reply
			return in, nil
		}
	}

	in.Reply = summary
	return in, nil
}

// soleConversationalReply short-circuits the common small-talk turn: exactly
// one step, conversational, succeeded.
func soleConversationalReply(plan *contractx.Plan) (string, bool) {
	if len(plan.Steps) != 1 {
		return "", false
	}
	step := plan.Steps[0]
	if step.Skill != contractx.IntentConversational || step.Status != contractx.StepSucceeded || step.Outcome == nil {
		return "", false
	}
	out, ok := step.Outcome.Result.(builtinx.ConversationalOutput)
	if !ok || strings.TrimSpace(out.Reply) == "" {
		return "", false
	}
	return out.Reply, true
}

func phraseWithModel(ctx context.Context, chat ChatRunner, systemPrompt string, in *GraphState, summary string) (string, error) {
	results := make([]map[string]any, 0, len(in.Plan.Steps))
	for _, step := range in.Plan.Steps {
		entry := map[string]any{
			"skill":  step.Skill,
			"status": string(step.Status),
		}
		if step.Outcome != nil {
			entry["outcome"] = step.Outcome
		}
		results = append(results, entry)
	}

	payload, err := json.Marshal(map[string]any{
		"user_message":   in.Utterance.Text,
		"memory_context": in.MemoryContext,
		"step_results":   results,
		"summary":        summary,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal synthesis payload: %v", contractx.ErrValidation, err)
	}

	msg, err := chat.Invoke(ctx, map[string]any{
		"system": systemPrompt,
		"input":  string(payload),
	})
	if err != nil {
		return "", fmt.Errorf("%w: synthesis invoke: %v", contractx.ErrModelInvoke, err)
	}
	return strings.TrimSpace(msg.Content), nil
}

// summarizePlan renders a readable account of every step without a model.
func summarizePlan(plan *contractx.Plan) string {
	var lines []string
	for _, step := range plan.Steps {
		lines = append(lines, describeStep(step))
	}
	return strings.Join(lines, "\n")
}

func describeStep(step *contractx.Step) string {
	switch step.Status {
	case contractx.StepSucceeded:
		return fmt.Sprintf("%s: done. %s", step.Skill, describeResult(step))
	case contractx.StepSkipped:
		return fmt.Sprintf("%s: skipped (%s).", step.Skill, step.Reason)
	case contractx.StepFailed:
		reason := step.Reason
		if reason == "" && step.Outcome != nil {
			reason = step.Outcome.Error
		}
		return fmt.Sprintf("%s: failed (%s).", step.Skill, reason)
	default:
		return fmt.Sprintf("%s: %s.", step.Skill, step.Status)
	}
}

func describeResult(step *contractx.Step) string {
	if step.Outcome == nil || step.Outcome.Result == nil {
		return ""
	}
	switch result := step.Outcome.Result.(type) {
	case builtinx.ConversationalOutput:
		return result.Reply
	case builtinx.CalculateResult:
		return fmt.Sprintf("%s = %g", result.Expression, result.Result)
	case builtinx.OpenAppOutput:
		return fmt.Sprintf("opened %s", result.App)
	case builtinx.SearchOutput:
		return describeSearch(result)
	case builtinx.ReadFileOutput:
		return fmt.Sprintf("read %d bytes from %s", len(result.Content), result.Path)
	case builtinx.WriteFileOutput:
		return fmt.Sprintf("wrote %d bytes to %s", result.Bytes, result.Path)
	case builtinx.RunCommandOutput:
		out := strings.TrimSpace(result.Stdout)
		if out == "" {
			out = fmt.Sprintf("exit code %d", result.ExitCode)
		}
		return out
	default:
		encoded, err := json.Marshal(result)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

func describeSearch(result builtinx.SearchOutput) string {
	if result.Answer != "" {
		return result.Answer
	}
	var parts []string
	for i, item := range result.Results {
		if i >= 3 {
			break
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", item.Title, item.Link))
	}
	if len(parts) == 0 {
		return "no results found"
	}
	return "top results: " + strings.Join(parts, "; ")
}
