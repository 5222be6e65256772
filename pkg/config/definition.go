// Package config loads the pipeline definition: stages, transition rules and
// the messages sent when a record enters a stage.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/dukex/salesflow/pkg/template"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed definition.schema.json
var definitionSchema []byte

var ErrInvalidDefinition = errors.New("invalid pipeline definition")

// Definition is the parsed content of a pipeline definition file.
type Definition struct {
	Stages      []models.Stage
	Transitions []models.TransitionRule
	Automations []models.StageAutomation
}

type definitionFile struct {
	Stages      []stageFile              `yaml:"stages"`
	Transitions []transitionFile         `yaml:"transitions"`
	Automations []models.StageAutomation `yaml:"automations"`
}

type stageFile struct {
	ID                 models.StageID `yaml:"id"`
	Name               string         `yaml:"name"`
	Order              int            `yaml:"order"`
	IsActive           *bool          `yaml:"is_active"`
	TargetDurationDays *int           `yaml:"target_duration_days"`
	DefaultProbability int            `yaml:"default_probability"`
	Color              string         `yaml:"color"`
}

type transitionFile struct {
	From               models.StageID `yaml:"from"`
	To                 models.StageID `yaml:"to"`
	IsAllowed          *bool          `yaml:"is_allowed"`
	RequiresApproval   bool           `yaml:"requires_approval"`
	AutoTransitionDays *int           `yaml:"auto_transition_days"`
	RequiredFields     []string       `yaml:"required_fields"`
}

// LoadDefinition reads and parses a YAML definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition file %s: %w", path, err)
	}

	return ParseDefinition(data)
}

// LoadDefinitionOrDefault falls back to DefaultDefinition when path is empty.
func LoadDefinitionOrDefault(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition(), nil
	}

	return LoadDefinition(path)
}

// ParseDefinition validates data against the definition schema before decoding it.
// Omitted is_active and is_allowed default to true.
func ParseDefinition(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", ErrInvalidDefinition, err)
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to decode YAML: %w", ErrInvalidDefinition, err)
	}

	def := &Definition{
		Stages:      make([]models.Stage, 0, len(file.Stages)),
		Transitions: make([]models.TransitionRule, 0, len(file.Transitions)),
		Automations: file.Automations,
	}

	for _, s := range file.Stages {
		def.Stages = append(def.Stages, models.Stage{
			ID:                 s.ID,
			Name:               s.Name,
			Order:              s.Order,
			IsActive:           s.IsActive == nil || *s.IsActive,
			TargetDurationDays: s.TargetDurationDays,
			DefaultProbability: s.DefaultProbability,
			Color:              s.Color,
		})
	}

	for _, t := range file.Transitions {
		def.Transitions = append(def.Transitions, models.TransitionRule{
			From:               t.From,
			To:                 t.To,
			IsAllowed:          t.IsAllowed == nil || *t.IsAllowed,
			RequiresApproval:   t.RequiresApproval,
			AutoTransitionDays: t.AutoTransitionDays,
			RequiredFields:     t.RequiredFields,
		})
	}

	return def, nil
}

func validateSchema(raw any) error {
	schemaLoader := gojsonschema.NewBytesLoader(definitionSchema)
	dataLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, resultErr.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(messages, "; "))
	}

	return nil
}

// Build creates the catalog and rule table described by the definition.
func (d *Definition) Build() (*catalog.Catalog, *rules.Table, error) {
	c, err := catalog.New(d.Stages)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	table, err := rules.New(c, d.Transitions)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	for _, automation := range d.Automations {
		if !c.Contains(automation.Stage) {
			return nil, nil, fmt.Errorf("%w: automation %q references unknown stage %s", ErrInvalidDefinition, automation.Name, automation.Stage)
		}

		if err := template.Validate(automation.Template); err != nil {
			return nil, nil, fmt.Errorf("%w: automation %q: %w", ErrInvalidDefinition, automation.Name, err)
		}
	}

	return c, table, nil
}

// AutomationsFor returns the automations configured for stage.
func (d *Definition) AutomationsFor(stage models.StageID) []models.StageAutomation {
	matched := make([]models.StageAutomation, 0)

	for _, automation := range d.Automations {
		if automation.Stage == stage {
			matched = append(matched, automation)
		}
	}

	return matched
}

// DefaultDefinition returns the built-in stages, rules and messages.
func DefaultDefinition() *Definition {
	return &Definition{
		Stages:      catalog.DefaultStages(),
		Transitions: rules.DefaultRules(),
		Automations: []models.StageAutomation{
			{
				Stage:    models.StageContactoInicial,
				Name:     "bienvenida",
				Channel:  "whatsapp",
				Template: "Hola {{.Lead.Name}}, gracias por tu interés. Un asesor te va a contactar en breve.",
			},
			{
				Stage:    models.StageDocumentacion,
				Name:     "pedido_documentacion",
				Channel:  "whatsapp",
				Template: "{{.Lead.Name}}, para avanzar con tu crédito necesitamos DNI, recibo de sueldo y servicio a tu nombre.",
			},
			{
				Stage:    models.StageCierreGanado,
				Name:     "felicitaciones",
				Channel:  "whatsapp",
				Template: "¡Felicitaciones {{.Lead.Name}}! Tu crédito fue aprobado por {{money .Record.TotalValue}}.",
			},
		},
	}
}
