package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")

	ErrMissingParameter   = errors.New("missing parameter")
	ErrDuplicateSkill     = errors.New("duplicate skill")
	ErrSkillNotFound      = errors.New("skill not found")
	ErrInvocationRejected = errors.New("invocation rejected")
	ErrStoreUnavailable   = errors.New("store unavailable")
)
