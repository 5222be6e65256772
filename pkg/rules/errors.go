package rules

import "errors"

var (
	ErrDuplicateRule    = errors.New("duplicate transition rule")
	ErrUnknownStage     = errors.New("transition rule references an unknown stage")
	ErrTerminalOutbound = errors.New("terminal stages may only transition into the reopen stage")
	ErrSelfTransition   = errors.New("transition rule from a stage to itself")
	ErrInvalidRule      = errors.New("invalid transition rule")
)
