package skill

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	contractx "github.com/jarvisd/jarvis/agent/contract"
)

type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
)

// ParamSpec describes one parameter of a skill.
type ParamSpec struct {
	Type     ParamType
	Desc     string
	Required bool
	Default  any
}

// Schema maps parameter names to their specs.
type Schema map[string]ParamSpec

// Skill is a discrete, independently invocable capability. Implementations
// are selected via the registry mapping; handlers are opaque to the core and
// may touch the host environment, the network, or the filesystem.
type Skill interface {
	Name() string
	Description() string
	Schema() Schema
	Invoke(ctx context.Context, params map[string]any) (any, error)
}

// ValidateParams checks params against the schema, applying declared defaults
// and safe coercions. It returns the normalized mapping without ever entering
// the handler on failure.
func ValidateParams(sc Schema, params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(sc))

	names := make([]string, 0, len(sc))
	for name := range sc {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := sc[name]
		raw, ok := params[name]
		if !ok || raw == nil || raw == "" {
			if spec.Default != nil {
				out[name] = spec.Default
				continue
			}
			if spec.Required {
				return nil, fmt.Errorf("%w: required parameter %q is missing", contractx.ErrInvocationRejected, name)
			}
			continue
		}

		coerced, err := coerce(spec.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: parameter %q: %v", contractx.ErrInvocationRejected, name, err)
		}
		out[name] = coerced
	}

	return out, nil
}

func coerce(t ParamType, v any) (any, error) {
	switch t {
	case TypeString:
		switch tv := v.(type) {
		case string:
			return tv, nil
		case float64:
			return strconv.FormatFloat(tv, 'f', -1, 64), nil
		case int:
			return strconv.Itoa(tv), nil
		case int64:
			return strconv.FormatInt(tv, 10), nil
		case bool:
			return strconv.FormatBool(tv), nil
		}
		return nil, fmt.Errorf("cannot coerce %T to string", v)
	case TypeNumber:
		switch tv := v.(type) {
		case float64:
			return tv, nil
		case int:
			return float64(tv), nil
		case int64:
			return float64(tv), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(tv), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a number", tv)
			}
			return f, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to number", v)
	case TypeBoolean:
		switch tv := v.(type) {
		case bool:
			return tv, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(tv))
			if err != nil {
				return nil, fmt.Errorf("value %q is not a boolean", tv)
			}
			return b, nil
		}
		return nil, fmt.Errorf("cannot coerce %T to boolean", v)
	}
	return nil, fmt.Errorf("unknown parameter type %q", t)
}
