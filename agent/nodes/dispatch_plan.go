package agentnode

import (
	"context"
	"fmt"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

func DispatchPlan(ctx context.Context, in *GraphState, dispatcher contractx.Dispatcher) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if err := dispatcher.Execute(ctx, in.Plan); err != nil {
		return nil, err
	}
	return in, nil
}
