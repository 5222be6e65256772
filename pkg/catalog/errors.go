package catalog

import "errors"

var (
	ErrStageNotFound        = errors.New("stage not found")
	ErrInvalidStage         = errors.New("invalid stage")
	ErrDuplicateStage       = errors.New("duplicate stage id")
	ErrDuplicateOrder       = errors.New("duplicate stage order among active stages")
	ErrMissingRequiredStage = errors.New("catalog is missing a required stage")
	ErrProtectedStage       = errors.New("stage cannot be deactivated")
)
