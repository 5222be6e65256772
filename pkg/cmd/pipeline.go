package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/salesflow/pkg/config"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/rules"
)

// LoadPipeline builds the stage catalog and rule table. Stages and rules saved in
// the store win over the definition file so admin changes survive restarts;
// automations always come from the file. On first boot the file definition is
// stored.
func LoadPipeline(ctx context.Context, logger *slog.Logger, store persistence.DefinitionStore, path string) (*config.Definition, *rules.Table, error) {
	definition, err := config.LoadDefinitionOrDefault(path)
	if err != nil {
		return nil, nil, err
	}

	stages, transitions, err := store.Definition(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load stored pipeline definition: %w", err)
	}

	stored := len(stages) > 0
	if stored {
		definition.Stages = stages
		definition.Transitions = transitions
	}

	_, table, err := definition.Build()
	if err != nil {
		return nil, nil, err
	}

	if !stored {
		if err := store.SaveDefinition(ctx, table.Catalog().Stages(), table.Rules()); err != nil {
			return nil, nil, fmt.Errorf("failed to store pipeline definition: %w", err)
		}
	}

	logger.InfoContext(ctx, "Pipeline definition loaded",
		"stages", len(table.Catalog().Stages()),
		"rules", len(table.Rules()),
		"automations", len(definition.Automations),
		"from_store", stored)

	return definition, table, nil
}
