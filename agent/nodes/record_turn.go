package agentnode

import (
	"context"
	"fmt"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

// RecordTurn appends the finished exchange to history. The structured write is
// authoritative: its failure fails the turn.
func RecordTurn(ctx context.Context, in *GraphState, memory contractx.Memory) (*GraphState, error) {
	if in == nil || in.Plan == nil {
		return nil, fmt.Errorf("%w: graph state is missing a plan", contractx.ErrValidation)
	}

	intentLabel := ""
	if len(in.Intents) > 0 {
		intentLabel = in.Intents[0].Label
	}

	turn := contractx.HistoryTurn{
		TurnID:         in.Plan.TurnID,
		UserID:         in.Utterance.UserID,
		UserMessage:    in.Utterance.Text,
		AssistantReply: in.Reply,
		IntentLabel:    intentLabel,
		SkillsUsed:     in.Plan.SkillsUsed(),
		CreatedAt:      in.Now,
	}
	if err := memory.AppendTurn(ctx, turn); err != nil {
		return nil, err
	}
	return in, nil
}
