// Package automation runs the time-based and event-driven collaborators of the
// pipeline: the sweeper that fires automatic transitions and the notifier that
// messages leads when they enter a stage.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 15m"

// Mover is the part of the engine the sweeper drives.
type Mover interface {
	Records(ctx context.Context, filter persistence.RecordFilter) ([]*models.PipelineRecord, error)
	MoveToStage(ctx context.Context, req pipeline.MoveRequest) (*pipeline.MoveResult, error)
}

type SweepRecorder interface {
	RecordSweep(moved, failed int, duration time.Duration)
}

// SweepReport summarises one sweep.
type SweepReport struct {
	Checked int
	Moved   int
	Skipped int
	Failed  int
}

type Sweeper struct {
	mover    Mover
	rules    *rules.Table
	schedule string
	actor    models.Actor
	recorder SweepRecorder
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

type SweeperOption func(*Sweeper)

func WithSchedule(schedule string) SweeperOption {
	return func(s *Sweeper) { s.schedule = schedule }
}

func WithSweepRecorder(recorder SweepRecorder) SweeperOption {
	return func(s *Sweeper) { s.recorder = recorder }
}

func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(logger *slog.Logger, mover Mover, table *rules.Table, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		mover:    mover,
		rules:    table,
		schedule: DefaultSchedule,
		actor:    models.SystemActor("sweeper"),
		logger:   logger.With("module", "sweeper"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Validate checks the cron expression.
func (s *Sweeper) Validate() error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule '%s': %w", s.schedule, err)
	}

	return nil
}

// Start schedules SweepOnce. Overlapping runs are skipped and panics recovered.
func (s *Sweeper) Start(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "schedule", s.schedule, "entry_id", entryID)

	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.cron = nil
	s.logger.Info("Sweeper stopped")
}

// SweepOnce moves every open record whose dwell exceeds an automatic rule of its
// stage. When several rules are due the one with the smallest delay wins. A
// failure on one record never stops the sweep.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	started := time.Now()

	var report SweepReport

	records, err := s.mover.Records(ctx, persistence.RecordFilter{OpenOnly: true})
	if err != nil {
		return report, fmt.Errorf("failed to list open records: %w", err)
	}

	now := s.now()

	for _, record := range records {
		report.Checked++

		rule, ok := s.dueRule(record, now)
		if !ok {
			continue
		}

		err := s.fire(ctx, record, rule, now)

		switch {
		case err == nil:
			report.Moved++
		case errors.Is(err, pipeline.ErrSameStage) || errors.Is(err, pipeline.ErrConcurrencyConflict) ||
			errors.Is(err, pipeline.ErrNotFound) || errors.Is(err, pipeline.ErrTransitionNotAllowed):
			// Someone else moved or removed the record since it was listed.
			report.Skipped++
			s.logger.DebugContext(ctx, "Automatic move skipped", "lead_id", record.LeadID, "reason", err)
		default:
			report.Failed++
			s.logger.ErrorContext(ctx, "Automatic move failed",
				"lead_id", record.LeadID, "from", rule.From, "to", rule.To, "error", err)
		}
	}

	if s.recorder != nil {
		s.recorder.RecordSweep(report.Moved, report.Failed, time.Since(started))
	}

	s.logger.InfoContext(ctx, "Sweep finished",
		"checked", report.Checked, "moved", report.Moved, "skipped", report.Skipped, "failed", report.Failed)

	return report, nil
}

// dueRule returns the smallest automatic rule the record has outstayed. Rules
// that need approval are never fired by the sweeper.
func (s *Sweeper) dueRule(record *models.PipelineRecord, now time.Time) (models.TransitionRule, bool) {
	dwell := record.DwellDays(now)

	for _, rule := range s.rules.AutoRules(record.CurrentStage) {
		if rule.RequiresApproval {
			continue
		}

		if dwell >= *rule.AutoTransitionDays {
			return rule, true
		}
	}

	return models.TransitionRule{}, false
}

func (s *Sweeper) fire(ctx context.Context, record *models.PipelineRecord, rule models.TransitionRule, now time.Time) error {
	req := pipeline.MoveRequest{
		LeadID:         record.LeadID,
		ToStage:        rule.To,
		Actor:          s.actor,
		TransitionType: models.TransitionAutomatic,
		Notes:          fmt.Sprintf("%d días sin movimiento en %s", record.DwellDays(now), rule.From),
		Metadata: map[string]any{
			"auto_transition_days": *rule.AutoTransitionDays,
		},
	}

	if rule.To == models.StageCierrePerdido {
		reason := models.LossReasonNoContacto
		req.LossReason = &reason
	}

	_, err := s.mover.MoveToStage(ctx, req)

	return err
}
