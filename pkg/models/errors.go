package models

import "errors"

var (
	ErrInvalidStageID    = errors.New("invalid stage id")
	ErrInvalidLossReason = errors.New("invalid loss reason")
	ErrInvalidPeriod     = errors.New("invalid forecast period")
)
