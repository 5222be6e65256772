package file

import (
	"context"
	"path/filepath"

	"github.com/dukex/salesflow/pkg/models"
)

type definitionDocument struct {
	Stages      []models.Stage          `json:"stages"`
	Transitions []models.TransitionRule `json:"transitions"`
}

func (fp *Persistence) definitionPath() string {
	return filepath.Join(fp.root, "definition.json")
}

func (fp *Persistence) SaveDefinition(_ context.Context, stages []models.Stage, rules []models.TransitionRule) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	return writeJSON(fp.definitionPath(), definitionDocument{Stages: stages, Transitions: rules})
}

func (fp *Persistence) Definition(_ context.Context) ([]models.Stage, []models.TransitionRule, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var doc definitionDocument
	if _, err := readJSON(fp.definitionPath(), &doc); err != nil {
		return nil, nil, err
	}

	if doc.Stages == nil {
		doc.Stages = []models.Stage{}
	}

	if doc.Transitions == nil {
		doc.Transitions = []models.TransitionRule{}
	}

	return doc.Stages, doc.Transitions, nil
}
