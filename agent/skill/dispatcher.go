package skill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

const defaultStepTimeout = 30 * time.Second

type DispatcherOption func(*Dispatcher)

func WithStepTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.stepTimeout = d
		}
	}
}

// Dispatcher executes plans against the registry. Each handler call is
// bounded by the step timeout and captured into an outcome envelope; a
// failing step never aborts independent later steps.
type Dispatcher struct {
	registry    *Registry
	stepTimeout time.Duration
}

var _ contractx.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(registry *Registry, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("skill registry is required")
	}
	d := &Dispatcher{
		registry:    registry,
		stepTimeout: defaultStepTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// Execute runs the plan's steps in declared order. Caller cancellation stops
// before the next step is handed to a handler; an in-flight handler is only
// interrupted through its own context.
func (d *Dispatcher) Execute(ctx context.Context, plan *contractx.Plan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan is nil", contractx.ErrValidation)
	}

	for i, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			skipRemaining(plan.Steps[i:], "turn cancelled")
			return err
		}

		d.executeStep(ctx, plan, i, step)
	}
	return nil
}

func (d *Dispatcher) executeStep(ctx context.Context, plan *contractx.Plan, idx int, step *contractx.Step) {
	// Planner-rejected steps (missing parameter) carry their reason already.
	if step.Status == contractx.StepFailed {
		step.Outcome = &contractx.Outcome{
			Status: contractx.OutcomeRejected,
			Error:  step.Reason,
		}
		return
	}

	if step.DependsOn >= 0 && step.DependsOn < idx {
		if dep := plan.Steps[step.DependsOn]; dep.Status != contractx.StepSucceeded {
			step.Status = contractx.StepSkipped
			step.Reason = fmt.Sprintf("dependency step %d did not succeed", step.DependsOn)
			step.Outcome = &contractx.Outcome{
				Status: contractx.OutcomeSkipped,
				Error:  step.Reason,
			}
			log.Debug().Str("skill", step.Skill).Int("dependency", step.DependsOn).
				Msg("step skipped: dependency failed")
			return
		}
	}

	sk, ok := d.registry.Lookup(step.Skill)
	if !ok {
		step.Status = contractx.StepFailed
		step.Reason = fmt.Sprintf("%v: %s", contractx.ErrSkillNotFound, step.Skill)
		step.Outcome = &contractx.Outcome{
			Status: contractx.OutcomeRejected,
			Error:  step.Reason,
		}
		return
	}

	params, err := ValidateParams(sk.Schema(), step.Params)
	if err != nil {
		step.Status = contractx.StepFailed
		step.Reason = err.Error()
		step.Outcome = &contractx.Outcome{
			Status: contractx.OutcomeRejected,
			Error:  err.Error(),
		}
		return
	}

	step.Status = contractx.StepRunning
	start := time.Now()

	stepCtx, cancel := context.WithTimeout(ctx, d.stepTimeout)
	result, err := invokeHandler(stepCtx, sk, params)
	// Handlers may translate the cancellation into their own error (exec
	// reports "signal: killed"), so the context's verdict decides too.
	timedOut := err != nil &&
		(errors.Is(err, context.DeadlineExceeded) || errors.Is(stepCtx.Err(), context.DeadlineExceeded))
	cancel()

	elapsed := time.Since(start)
	switch {
	case timedOut:
		step.Status = contractx.StepFailed
		step.Reason = "handler timed out"
		step.Outcome = &contractx.Outcome{
			Status:  contractx.OutcomeTimeout,
			Error:   err.Error(),
			Elapsed: elapsed,
		}
		log.Warn().Str("skill", step.Skill).Dur("elapsed", elapsed).Msg("skill handler timed out")
	case err != nil:
		step.Status = contractx.StepFailed
		step.Reason = err.Error()
		step.Outcome = &contractx.Outcome{
			Status:  contractx.OutcomeError,
			Error:   err.Error(),
			Elapsed: elapsed,
		}
		log.Warn().Err(err).Str("skill", step.Skill).Msg("skill handler failed")
	default:
		step.Status = contractx.StepSucceeded
		step.Outcome = &contractx.Outcome{
			Status:  contractx.OutcomeSucceeded,
			Result:  result,
			Elapsed: elapsed,
		}
		log.Debug().Str("skill", step.Skill).Dur("elapsed", elapsed).Msg("skill handler succeeded")
	}
}

// invokeHandler shields the pipeline from panicking handlers; a panic is
// reported as a handler error in the envelope.
func invokeHandler(ctx context.Context, sk Skill, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return sk.Invoke(ctx, params)
}

func skipRemaining(steps []*contractx.Step, reason string) {
	for _, step := range steps {
		if step.Status != contractx.StepPending {
			continue
		}
		step.Status = contractx.StepSkipped
		step.Reason = reason
		step.Outcome = &contractx.Outcome{
			Status: contractx.OutcomeSkipped,
			Error:  reason,
		}
	}
}
