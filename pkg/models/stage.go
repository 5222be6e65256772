// Package models defines the core domain models of the sales pipeline.
package models

import (
	"fmt"
	"regexp"
)

// StageID identifies a pipeline stage. Ids are upper snake case.
type StageID string

const (
	StageLeadNuevo       StageID = "LEAD_NUEVO"
	StageContactoInicial StageID = "CONTACTO_INICIAL"
	StageCalificacion    StageID = "CALIFICACION"
	StageDocumentacion   StageID = "DOCUMENTACION"
	StagePresentacion    StageID = "PRESENTACION"
	StageNegociacion     StageID = "NEGOCIACION"
	StageSeguimiento     StageID = "SEGUIMIENTO"
	StageCierreGanado    StageID = "CIERRE_GANADO"
	StageCierrePerdido   StageID = "CIERRE_PERDIDO"

	// InitialStage is where every new record starts.
	InitialStage = StageLeadNuevo
	// ReopenStage is the only stage reachable from a terminal stage.
	ReopenStage = StageSeguimiento
)

var stageIDPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)

// ParseStageID validates the textual form of a stage id. It does not check that
// the stage exists in a catalog.
func ParseStageID(raw string) (StageID, error) {
	if !stageIDPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStageID, raw)
	}

	return StageID(raw), nil
}

// IsTerminal reports whether the id is one of the two closing stages.
func (id StageID) IsTerminal() bool {
	return id == StageCierreGanado || id == StageCierrePerdido
}

// Stage is a named, ordered step of the pipeline.
type Stage struct {
	ID                 StageID `json:"id"                             validate:"required"            yaml:"id"`
	Name               string  `json:"name"                           validate:"required"            yaml:"name"`
	Order              int     `json:"order"                          validate:"min=0"               yaml:"order"`
	IsActive           bool    `json:"is_active"                      yaml:"is_active"`
	TargetDurationDays *int    `json:"target_duration_days,omitempty" validate:"omitempty,min=0"     yaml:"target_duration_days,omitempty"`
	DefaultProbability int     `json:"default_probability"            validate:"min=0,max=100"       yaml:"default_probability"`
	Color              string  `json:"color,omitempty"                yaml:"color,omitempty"`
}

// IsTerminal reports whether the stage closes the deal.
func (s Stage) IsTerminal() bool {
	return s.ID.IsTerminal()
}
