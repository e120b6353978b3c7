package planner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	contractx "github.com/jarvisd/jarvis/agent/contract"
	skillx "github.com/jarvisd/jarvis/agent/skill"
)

// labelToSkill routes intent labels to skill names. The mapping is N:1:
// several labels may share a skill with different slot framing.
var labelToSkill = map[string]string{
	"open_app":       "open_app",
	"launch_app":     "open_app",
	"web_search":     "web_search",
	"play_media":     "web_search",
	"run_command":    "run_command",
	"read_file":      "read_file",
	"write_file":     "write_file",
	"calculate":      "calculate",
	"conversational": "conversational",
}

// Labels returns every intent label the planner can route, sorted. The
// resolver accepts exactly these labels from the model.
func Labels() []string {
	labels := make([]string, 0, len(labelToSkill))
	for label := range labelToSkill {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// profileDefaults names the profile key that can fill a skill parameter when
// the intent did not carry it, e.g. a stored preferred app becoming the
// default open_app target.
var profileDefaults = map[string]map[string]string{
	"open_app": {
		"app_name": "default_app",
	},
	"web_search": {
		"query": "",
	},
}

// slotAliases maps common slot spellings onto the canonical parameter name of
// the target skill.
var slotAliases = map[string]string{
	"app":        "app_name",
	"search":     "query",
	"text":       "query",
	"path":       "file_path",
	"cmd":        "command",
	"expr":       "expression",
}

// Planner expands ordered intents into an executable plan. It only reads the
// profile passed in; memory is never mutated during planning.
type Planner struct {
	registry *skillx.Registry
}

var _ contractx.Planner = (*Planner)(nil)

func New(registry *skillx.Registry) (*Planner, error) {
	if registry == nil {
		return nil, errors.New("skill registry is required")
	}
	return &Planner{registry: registry}, nil
}

// Plan builds one step per intent, in intent order. Steps whose required
// parameters cannot be resolved are marked failed with a missing-parameter
// reason before execution; the rest of the plan is unaffected.
//
// When two equal-confidence intents route to the same skill with conflicting
// parameters, the first-detected intent wins its slot values; the later one
// still becomes its own step in surface order.
func (p *Planner) Plan(ctx context.Context, intents []contractx.Intent, profile contractx.UserProfile) (*contractx.Plan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(intents) == 0 {
		return nil, fmt.Errorf("%w: at least one intent is required", contractx.ErrValidation)
	}

	plan := &contractx.Plan{
		TurnID: uuid.NewString(),
		Steps:  make([]*contractx.Step, 0, len(intents)),
	}

	for i, intent := range intents {
		step := p.buildStep(intent, profile)
		if intent.DependsOnPrev && i > 0 {
			step.DependsOn = i - 1
		}
		plan.Steps = append(plan.Steps, step)
	}

	return plan, nil
}

func (p *Planner) buildStep(intent contractx.Intent, profile contractx.UserProfile) *contractx.Step {
	skillName, ok := labelToSkill[intent.Label]
	if !ok {
		skillName = "conversational"
	}

	step := &contractx.Step{
		Skill:       skillName,
		Params:      map[string]any{},
		DependsOn:   -1,
		Status:      contractx.StepPending,
		IntentLabel: intent.Label,
	}

	sk, found := p.registry.Lookup(skillName)
	if !found {
		step.Status = contractx.StepFailed
		step.Reason = fmt.Sprintf("%v: %s", contractx.ErrSkillNotFound, skillName)
		return step
	}

	// Intent slots first; earlier slots win on duplicate names.
	for _, slot := range intent.Slots {
		name := canonicalSlotName(sk.Schema(), slot.Name)
		if _, exists := step.Params[name]; exists {
			continue
		}
		step.Params[name] = slot.Value
	}

	// Then profile-derived defaults, then skill-declared defaults. What is
	// still missing fails the step before execution.
	for pname, spec := range sk.Schema() {
		if _, exists := step.Params[pname]; exists {
			continue
		}
		if key := profileDefaults[skillName][pname]; key != "" {
			if v, ok := profile.Preference(key); ok {
				step.Params[pname] = v
				continue
			}
		}
		if spec.Default != nil {
			step.Params[pname] = spec.Default
			continue
		}
		if spec.Required {
			step.Status = contractx.StepFailed
			step.Reason = fmt.Sprintf("%v: %s", contractx.ErrMissingParameter, pname)
			return step
		}
	}

	return step
}

func canonicalSlotName(sc skillx.Schema, name string) string {
	if _, ok := sc[name]; ok {
		return name
	}
	if alias, ok := slotAliases[name]; ok {
		if _, exists := sc[alias]; exists {
			return alias
		}
	}
	return name
}
