// Package rules implements the deny-by-default transition rule table.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
)

// Table is keyed by the ordered (from, to) pair. A missing pair is denied.
type Table struct {
	mu      sync.RWMutex
	catalog *catalog.Catalog
	rules   map[models.RuleKey]models.TransitionRule
}

// New validates rules against the catalog. Every stage a rule names must be
// known, pairs are unique, and terminal stages only reopen into the reopen stage.
func New(c *catalog.Catalog, rules []models.TransitionRule) (*Table, error) {
	t := &Table{
		catalog: c,
		rules:   make(map[models.RuleKey]models.TransitionRule, len(rules)),
	}

	for _, rule := range rules {
		if err := t.check(rule); err != nil {
			return nil, err
		}

		if _, exists := t.rules[rule.Key()]; exists {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateRule, rule.From, rule.To)
		}

		t.rules[rule.Key()] = rule
	}

	return t, nil
}

func (t *Table) check(rule models.TransitionRule) error {
	if rule.From == rule.To {
		return fmt.Errorf("%w: %s", ErrSelfTransition, rule.From)
	}

	for _, id := range []models.StageID{rule.From, rule.To} {
		if !t.catalog.Contains(id) {
			return fmt.Errorf("%w: %s", ErrUnknownStage, id)
		}
	}

	if rule.From.IsTerminal() && rule.To != models.ReopenStage {
		return fmt.Errorf("%w: %s -> %s", ErrTerminalOutbound, rule.From, rule.To)
	}

	if rule.AutoTransitionDays != nil && *rule.AutoTransitionDays < 1 {
		return fmt.Errorf("%w: %s -> %s auto_transition_days must be positive", ErrInvalidRule, rule.From, rule.To)
	}

	return nil
}

// GetRule returns the rule for the pair, if any.
func (t *Table) GetRule(from, to models.StageID) (models.TransitionRule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rule, ok := t.rules[models.RuleKey{From: from, To: to}]

	return rule, ok
}

// IsTransitionAllowed fails closed: same stage, missing rows, disallowed rows and
// inactive targets are all denied.
func (t *Table) IsTransitionAllowed(from, to models.StageID) bool {
	if from == to {
		return false
	}

	rule, ok := t.GetRule(from, to)
	if !ok || !rule.IsAllowed {
		return false
	}

	stage, err := t.catalog.GetStage(to)

	return err == nil && stage.IsActive
}

// ListAllowedTargets returns the active stages reachable from from, ordered by Order.
func (t *Table) ListAllowedTargets(from models.StageID) []models.Stage {
	targets := make([]models.Stage, 0)

	for _, stage := range t.catalog.ListActiveStages() {
		if t.IsTransitionAllowed(from, stage.ID) {
			targets = append(targets, stage)
		}
	}

	return targets
}

// AutoRules returns the allowed automatic rules leaving from, smallest delay first.
func (t *Table) AutoRules(from models.StageID) []models.TransitionRule {
	t.mu.RLock()

	auto := make([]models.TransitionRule, 0)
	for key, rule := range t.rules {
		if key.From == from && rule.IsAutomatic() {
			auto = append(auto, rule)
		}
	}

	t.mu.RUnlock()

	filtered := auto[:0]
	for _, rule := range auto {
		if t.IsTransitionAllowed(rule.From, rule.To) {
			filtered = append(filtered, rule)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		if *filtered[i].AutoTransitionDays == *filtered[j].AutoTransitionDays {
			return filtered[i].To < filtered[j].To
		}

		return *filtered[i].AutoTransitionDays < *filtered[j].AutoTransitionDays
	})

	return filtered
}

// Rules returns every rule ordered by (from, to).
func (t *Table) Rules() []models.TransitionRule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	all := make([]models.TransitionRule, 0, len(t.rules))
	for _, rule := range t.rules {
		all = append(all, rule)
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].From == all[j].From {
			return all[i].To < all[j].To
		}

		return all[i].From < all[j].From
	})

	return all
}

// Put adds or replaces a rule after validating it.
func (t *Table) Put(rule models.TransitionRule) error {
	if err := t.check(rule); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.rules[rule.Key()] = rule

	return nil
}

// Catalog returns the catalog the table was validated against.
func (t *Table) Catalog() *catalog.Catalog {
	return t.catalog
}
