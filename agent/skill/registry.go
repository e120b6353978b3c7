package skill

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

// Registry holds the invocable skills. All registrations happen during
// startup wiring; afterwards the registry is read-only, so lookups take no
// lock. The mutex only guards concurrent registration.
type Registry struct {
	mu     sync.Mutex
	skills map[string]Skill
}

func NewRegistry() *Registry {
	return &Registry{
		skills: make(map[string]Skill),
	}
}

// Register adds a skill under its unique name. A duplicate name is rejected;
// the first registration wins and the conflict is logged.
func (r *Registry) Register(s Skill) error {
	if s == nil {
		return fmt.Errorf("%w: skill is nil", contractx.ErrValidation)
	}
	name := s.Name()
	if name == "" {
		return fmt.Errorf("%w: skill name is empty", contractx.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[name]; exists {
		log.Warn().Str("skill", name).Msg("duplicate skill registration rejected")
		return fmt.Errorf("%w: %s", contractx.ErrDuplicateSkill, name)
	}
	r.skills[name] = s
	return nil
}

// MustRegister registers all given skills, panicking on conflict. Startup-only.
func (r *Registry) MustRegister(skills ...Skill) {
	for _, s := range skills {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(name string) (Skill, bool) {
	s, ok := r.skills[name]
	return s, ok
}

// Names returns all registered skill names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToolInfos exposes the registered skills as model tool descriptors, used to
// build the resolver prompt.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(r.skills))
	for _, name := range r.Names() {
		s := r.skills[name]
		params := make(map[string]*schema.ParameterInfo, len(s.Schema()))
		for pname, spec := range s.Schema() {
			params[pname] = &schema.ParameterInfo{
				Type:     toDataType(spec.Type),
				Desc:     spec.Desc,
				Required: spec.Required,
			}
		}
		infos = append(infos, &schema.ToolInfo{
			Name:        s.Name(),
			Desc:        s.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(params),
		})
	}
	return infos
}

func toDataType(t ParamType) schema.DataType {
	switch t {
	case TypeNumber:
		return schema.Number
	case TypeBoolean:
		return schema.Boolean
	default:
		return schema.String
	}
}
