// Package analytics derives funnel metrics and a revenue forecast from pipeline
// records and their history.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/ledger"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/otelhelper"
	"github.com/dukex/salesflow/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Source is the read side of the record store.
type Source interface {
	ledger.Reader
	Records(ctx context.Context, filter persistence.RecordFilter) ([]*models.PipelineRecord, error)
}

// CacheRecorder observes cache effectiveness.
type CacheRecorder interface {
	CacheHit(key string)
	CacheMiss(key string)
}

type noopCacheRecorder struct{}

func (noopCacheRecorder) CacheHit(string) {}

func (noopCacheRecorder) CacheMiss(string) {}

type Aggregator struct {
	source   Source
	catalog  *catalog.Catalog
	ledger   *ledger.Ledger
	cache    Cache
	recorder CacheRecorder
	tracer   trace.Tracer
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
}

type Option func(*Aggregator)

// WithCache memoises results until the next pipeline event invalidates them.
func WithCache(cache Cache) Option {
	return func(a *Aggregator) { a.cache = cache }
}

func WithCacheRecorder(recorder CacheRecorder) Option {
	return func(a *Aggregator) { a.recorder = recorder }
}

// WithLocation sets where weeks and months begin. Defaults to UTC.
func WithLocation(location *time.Location) Option {
	return func(a *Aggregator) { a.location = location }
}

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(a *Aggregator) { a.tracer = tracer }
}

func New(logger *slog.Logger, source Source, c *catalog.Catalog, opts ...Option) *Aggregator {
	a := &Aggregator{
		source:   source,
		catalog:  c,
		ledger:   ledger.New(source),
		recorder: noopCacheRecorder{},
		tracer:   otelhelper.Tracer("salesflow/analytics"),
		logger:   logger,
		location: time.UTC,
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

const metricsCacheKey = "metrics"

func forecastCacheKey(period models.Period) string {
	return "forecast:" + string(period)
}

// ComputeStageMetrics reports every active stage.
//
// ConversionRate is funnel conversion: of the records that ever entered a stage,
// the fraction that afterwards reached a higher non-loss stage or the won stage.
// The won stage therefore converts at 1 and the loss stage at 0.
func (a *Aggregator) ComputeStageMetrics(ctx context.Context) (map[models.StageID]models.StageMetrics, error) {
	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "analytics.stage_metrics")
	defer span.End()

	cached := make(map[models.StageID]models.StageMetrics)
	if a.fromCache(ctx, metricsCacheKey, &cached) {
		return cached, nil
	}

	records, err := a.source.Records(ctx, persistence.RecordFilter{})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	histories, err := a.ledger.ByRecord(ctx)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	result := a.stageMetrics(records, histories, a.now().In(a.location))

	a.toCache(ctx, metricsCacheKey, result)

	return result, nil
}

type stageTally struct {
	dwellSum   int
	dwellCount int
	entered    int
	converted  int
	thisWeek   int
	thisMonth  int
}

func (a *Aggregator) stageMetrics(records []*models.PipelineRecord, histories map[string][]models.HistoryEntry, now time.Time) map[models.StageID]models.StageMetrics {
	weekStart := startOfWeek(now)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())

	orders := make(map[models.StageID]int)
	for _, stage := range a.catalog.Stages() {
		orders[stage.ID] = stage.Order
	}

	tallies := make(map[models.StageID]*stageTally)
	tally := func(id models.StageID) *stageTally {
		if tallies[id] == nil {
			tallies[id] = &stageTally{}
		}

		return tallies[id]
	}

	for _, entries := range histories {
		visits := ledger.Visits(entries)
		seen := make(map[models.StageID]bool)

		for i, visit := range visits {
			t := tally(visit.Stage)

			dwell := visit.DwellDays
			if !visit.Completed {
				dwell = models.WholeDaysBetween(visit.EnteredAt, now)
			}

			t.dwellSum += dwell
			t.dwellCount++

			if !visit.EnteredAt.Before(weekStart) {
				t.thisWeek++
			}

			if !visit.EnteredAt.Before(monthStart) {
				t.thisMonth++
			}

			if seen[visit.Stage] {
				continue
			}

			seen[visit.Stage] = true
			t.entered++

			if converts(visit.Stage, visits[i+1:], orders) {
				t.converted++
			}
		}
	}

	current := make(map[models.StageID]int)
	for _, record := range records {
		current[record.CurrentStage]++
	}

	result := make(map[models.StageID]models.StageMetrics)

	for _, stage := range a.catalog.ListActiveStages() {
		t := tally(stage.ID)

		metrics := models.StageMetrics{
			StageID:            stage.ID,
			StageName:          stage.Name,
			TotalLeads:         current[stage.ID],
			LeadsThisWeek:      t.thisWeek,
			LeadsThisMonth:     t.thisMonth,
			TargetDurationDays: stage.TargetDurationDays,
		}

		if t.dwellCount > 0 {
			metrics.AverageTimeInStageDays = float64(t.dwellSum) / float64(t.dwellCount)
		}

		if t.entered > 0 {
			metrics.ConversionRate = float64(t.converted) / float64(t.entered)
		}

		if stage.TargetDurationDays != nil && t.dwellCount > 0 {
			metrics.IsBottleneck = metrics.AverageTimeInStageDays > float64(*stage.TargetDurationDays)
		}

		result[stage.ID] = metrics
	}

	return result
}

// converts reports whether any later visit counts as progress out of stage.
func converts(stage models.StageID, later []ledger.Visit, orders map[models.StageID]int) bool {
	switch stage {
	case models.StageCierreGanado:
		return true
	case models.StageCierrePerdido:
		return false
	}

	for _, visit := range later {
		if visit.Stage == models.StageCierreGanado {
			return true
		}

		if visit.Stage != models.StageCierrePerdido && orders[visit.Stage] > orders[stage] {
			return true
		}
	}

	return false
}

// startOfWeek returns Monday 00:00 of the week containing t.
func startOfWeek(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)

	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}

// ComputeForecast is a plain expected value: for each open record expected to
// close within [now, now+period) it adds TotalValue and
// TotalValue*ProbabilityPercent/100. It is not a statistical model. Open records
// without an expected close date are reported apart as Unscheduled.
func (a *Aggregator) ComputeForecast(ctx context.Context, period models.Period) (*models.ForecastData, error) {
	ctx, span := otelhelper.StartSpan(ctx, a.tracer, "analytics.forecast",
		attribute.String(otelhelper.PeriodKey, string(period)))
	defer span.End()

	key := forecastCacheKey(period)

	var cached models.ForecastData
	if a.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	records, err := a.source.Records(ctx, persistence.RecordFilter{OpenOnly: true})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to list open records: %w", err)
	}

	now := a.now().UTC()
	forecast := &models.ForecastData{
		Period:      period,
		From:        now,
		To:          period.End(now),
		ByStage:     make(map[models.StageID]models.StageForecast),
		GeneratedAt: now,
	}

	for _, record := range records {
		weighted := record.TotalValue * float64(record.ProbabilityPercent) / 100

		if record.ExpectedCloseDate == nil {
			forecast.Unscheduled.Count++
			forecast.Unscheduled.TotalValue += record.TotalValue
			forecast.Unscheduled.WeightedValue += weighted

			continue
		}

		if record.ExpectedCloseDate.Before(forecast.From) || !record.ExpectedCloseDate.Before(forecast.To) {
			continue
		}

		entry := forecast.ByStage[record.CurrentStage]
		entry.StageID = record.CurrentStage
		entry.Count++
		entry.TotalValue += record.TotalValue
		entry.WeightedValue += weighted
		forecast.ByStage[record.CurrentStage] = entry

		forecast.TotalValue += record.TotalValue
		forecast.WeightedValue += weighted
	}

	a.toCache(ctx, key, forecast)

	return forecast, nil
}
