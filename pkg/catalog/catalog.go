// Package catalog holds the ordered set of pipeline stages.
package catalog

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

// requiredStages must exist in every catalog and stay active.
var requiredStages = []models.StageID{
	models.StageCierreGanado,
	models.StageCierrePerdido,
	models.ReopenStage,
	models.InitialStage,
}

// Catalog is safe for concurrent use. Stages are never removed, only deactivated,
// so history entries can always be resolved.
type Catalog struct {
	mu       sync.RWMutex
	stages   map[models.StageID]models.Stage
	validate *validator.Validate
}

func New(stages []models.Stage) (*Catalog, error) {
	c := &Catalog{
		stages:   make(map[models.StageID]models.Stage, len(stages)),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, stage := range stages {
		if err := c.add(stage); err != nil {
			return nil, err
		}
	}

	for _, id := range requiredStages {
		stage, ok := c.stages[id]
		if !ok || !stage.IsActive {
			return nil, fmt.Errorf("%w: %s", ErrMissingRequiredStage, id)
		}
	}

	return c, nil
}

// ListActiveStages returns the active stages ordered by Order.
func (c *Catalog) ListActiveStages() []models.Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	active := make([]models.Stage, 0, len(c.stages))
	for _, stage := range c.stages {
		if stage.IsActive {
			active = append(active, stage)
		}
	}

	sortByOrder(active)

	return active
}

// Stages returns every stage, inactive ones included.
func (c *Catalog) Stages() []models.Stage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := make([]models.Stage, 0, len(c.stages))
	for _, stage := range c.stages {
		all = append(all, stage)
	}

	sortByOrder(all)

	return all
}

func (c *Catalog) GetStage(id models.StageID) (models.Stage, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stage, ok := c.stages[id]
	if !ok {
		return models.Stage{}, fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}

	return stage, nil
}

// Contains reports whether id is known, active or not.
func (c *Catalog) Contains(id models.StageID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.stages[id]

	return ok
}

// AddStage registers a new stage. Existing orders are never renumbered.
func (c *Catalog) AddStage(stage models.Stage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.add(stage)
}

// DeactivateStage hides a stage from new transitions while keeping it for history.
func (c *Catalog) DeactivateStage(id models.StageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stage, ok := c.stages[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrStageNotFound, id)
	}

	for _, required := range requiredStages {
		if required == id {
			return fmt.Errorf("%w: %s", ErrProtectedStage, id)
		}
	}

	stage.IsActive = false
	c.stages[id] = stage

	return nil
}

func (c *Catalog) add(stage models.Stage) error {
	if _, err := models.ParseStageID(string(stage.ID)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStage, err)
	}

	if err := c.validate.Struct(stage); err != nil {
		return fmt.Errorf("%w %s: %w", ErrInvalidStage, stage.ID, err)
	}

	if _, exists := c.stages[stage.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateStage, stage.ID)
	}

	if stage.IsActive {
		for _, existing := range c.stages {
			if existing.IsActive && existing.Order == stage.Order {
				return fmt.Errorf("%w: %s and %s share order %d", ErrDuplicateOrder, existing.ID, stage.ID, stage.Order)
			}
		}
	}

	c.stages[stage.ID] = stage

	return nil
}

func sortByOrder(stages []models.Stage) {
	sort.Slice(stages, func(i, j int) bool {
		if stages[i].Order == stages[j].Order {
			return stages[i].ID < stages[j].ID
		}

		return stages[i].Order < stages[j].Order
	})
}
