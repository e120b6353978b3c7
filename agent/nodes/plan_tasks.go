package agentnode

import (
	"context"
	"fmt"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

func PlanTasks(ctx context.Context, in *GraphState, planner contractx.Planner) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	plan, err := planner.Plan(ctx, in.Intents, in.Profile)
	if err != nil {
		return nil, err
	}

	// The conversational skill sees the same context the chat stage does.
	for _, step := range plan.Steps {
		if step.Skill == contractx.IntentConversational && step.Status == contractx.StepPending {
			if _, ok := step.Params["memory_context"]; !ok {
				step.Params["memory_context"] = in.MemoryContext
			}
		}
	}

	in.Plan = plan
	return in, nil
}
