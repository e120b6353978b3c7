package builtin

import "fmt"

func stringParam(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%s is required", name)
	}
	value, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", name)
	}
	return value, nil
}

func numberParam(params map[string]any, name string, fallback float64) float64 {
	raw, ok := params[name]
	if !ok {
		return fallback
	}
	value, ok := raw.(float64)
	if !ok {
		return fallback
	}
	return value
}

func boolParam(params map[string]any, name string, fallback bool) bool {
	raw, ok := params[name]
	if !ok {
		return fallback
	}
	value, ok := raw.(bool)
	if !ok {
		return fallback
	}
	return value
}
