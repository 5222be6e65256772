// Package persistencetest holds the behaviour every persistence backend must share.
package persistencetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/dukex/salesflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) persistence.Persistence

// Run exercises stores built by factory against the persistence.Persistence contract.
func Run(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("leads", func(t *testing.T) { testLeads(t, factory(t)) })
	t.Run("create record", func(t *testing.T) { testCreateRecord(t, factory(t)) })
	t.Run("commit transition", func(t *testing.T) { testCommitTransition(t, factory(t)) })
	t.Run("concurrent commits", func(t *testing.T) { testConcurrentCommits(t, factory(t)) })
	t.Run("update details", func(t *testing.T) { testUpdateDetails(t, factory(t)) })
	t.Run("records filter", func(t *testing.T) { testRecordsFilter(t, factory(t)) })
	t.Run("delete lead cascades", func(t *testing.T) { testDeleteLead(t, factory(t)) })
	t.Run("definition", func(t *testing.T) { testDefinition(t, factory(t)) })
	t.Run("health check", func(t *testing.T) {
		assert.NoError(t, factory(t).HealthCheck(context.Background()))
	})
}

func seedRecord(ctx context.Context, t *testing.T, p persistence.Persistence, overrides ...func(*models.PipelineRecord)) (*models.Lead, *models.PipelineRecord) {
	t.Helper()

	lead := testutil.CreateTestLead()
	require.NoError(t, p.SaveLead(ctx, lead))

	record := testutil.CreateTestRecord(lead.ID, overrides...)
	created := models.NewCreatedEntry(record.ID, record.CurrentStage, "tester", record.StageEnteredAt)
	require.NoError(t, p.CreateRecord(ctx, record, created))

	return lead, record
}

func move(record *models.PipelineRecord, to models.StageID, at time.Time) models.HistoryEntry {
	entry := models.NewTransitionedEntry(record.ID, record.CurrentStage, to, models.TransitionManual,
		models.WholeDaysBetween(record.StageEnteredAt, at), "tester", at)

	record.CurrentStage = to
	record.StageEnteredAt = at
	record.UpdatedAt = at

	return entry
}

func testLeads(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	missing, err := p.LeadByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, missing)

	lead := testutil.CreateTestLead()
	require.NoError(t, p.SaveLead(ctx, lead))

	got, err := p.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, lead.Name, got.Name)
	assert.Equal(t, lead.DNI, got.DNI)
	assert.Equal(t, "Honda Wave 110", got.Fields["modelo_moto"])
	assert.WithinDuration(t, lead.CreatedAt, got.CreatedAt, time.Second)

	lead.Phone = "+543704111111"
	require.NoError(t, p.SaveLead(ctx, lead))

	got, err = p.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, "+543704111111", got.Phone)

	generated := &models.Lead{Name: "Sin ID"}
	require.NoError(t, p.SaveLead(ctx, generated))
	assert.NotEmpty(t, generated.ID)
	assert.False(t, generated.CreatedAt.IsZero())
}

func testCreateRecord(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	lead, record := seedRecord(ctx, t, p)
	assert.Equal(t, int64(1), record.Version)

	got, err := p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, models.InitialStage, got.CurrentStage)
	assert.Equal(t, int64(1), got.Version)
	assert.Nil(t, got.ClosedAt)
	assert.Nil(t, got.Won)
	assert.Nil(t, got.LossReason)

	history, err := p.HistoryForRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.HistoryKindCreated, history[0].Kind)
	assert.Equal(t, models.InitialStage, history[0].ToStage)

	_, hasFrom := history[0].From()
	assert.False(t, hasFrom)

	duplicate := testutil.CreateTestRecord(lead.ID)
	err = p.CreateRecord(ctx, duplicate, models.NewCreatedEntry(duplicate.ID, duplicate.CurrentStage, "tester", testutil.BaseTime))
	assert.True(t, persistence.IsRecordAlreadyExists(err), "got %v", err)

	orphan := testutil.CreateTestRecord("no-such-lead")
	err = p.CreateRecord(ctx, orphan, models.NewCreatedEntry(orphan.ID, orphan.CurrentStage, "tester", testutil.BaseTime))
	assert.True(t, persistence.IsLeadNotFound(err), "got %v", err)

	absent, err := p.RecordByLeadID(ctx, "no-such-lead")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func testCommitTransition(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	lead, record := seedRecord(ctx, t, p)

	at := testutil.BaseTime.Add(50 * time.Hour)
	entry := move(record, models.StageContactoInicial, at)
	entry.Notes = "primer llamado"
	entry.Metadata = map[string]any{"channel": "whatsapp"}

	require.NoError(t, p.CommitTransition(ctx, 1, record, entry))
	assert.Equal(t, int64(2), record.Version)

	got, err := p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageContactoInicial, got.CurrentStage)
	assert.Equal(t, int64(2), got.Version)
	assert.WithinDuration(t, at, got.StageEnteredAt, time.Second)

	history, err := p.HistoryForRecord(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	from, ok := history[1].From()
	require.True(t, ok)
	assert.Equal(t, models.InitialStage, from)
	assert.Equal(t, models.StageContactoInicial, history[1].ToStage)
	assert.Equal(t, 2, history[1].DurationInPreviousStageDays)
	assert.Equal(t, "primer llamado", history[1].Notes)
	assert.Equal(t, "whatsapp", history[1].Metadata["channel"])

	// stale version: nothing changes, nothing is appended
	stale := move(record, models.StageCalificacion, at.Add(time.Hour))
	err = p.CommitTransition(ctx, 1, record, stale)
	assert.True(t, persistence.IsVersionConflict(err), "got %v", err)

	got, err = p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageContactoInicial, got.CurrentStage)

	history, err = p.HistoryForRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	// closing stores the terminal fields
	closedAt := at.Add(2 * time.Hour)
	won := false
	reason := models.LossReasonPrecio
	got.Won = &won
	got.LossReason = &reason
	got.ClosedAt = &closedAt
	got.ProbabilityPercent = 0
	got.TotalValue = 2300000
	got.AssignedTo = "u-closer"
	closing := move(got, models.StageCierrePerdido, closedAt)

	require.NoError(t, p.CommitTransition(ctx, 2, got, closing))

	closed, err := p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, closed.ID)
	assert.Equal(t, lead.ID, closed.LeadID)
	assert.Equal(t, models.StageCierrePerdido, closed.CurrentStage)
	assert.Equal(t, int64(3), closed.Version)
	assert.Equal(t, 0, closed.ProbabilityPercent)
	assert.InDelta(t, 2300000, closed.TotalValue, 0.001)
	assert.Equal(t, "u-closer", closed.AssignedTo)
	assert.WithinDuration(t, closedAt, closed.StageEnteredAt, time.Second)
	assert.WithinDuration(t, record.CreatedAt, closed.CreatedAt, time.Second)
	require.NotNil(t, closed.Won)
	assert.False(t, *closed.Won)
	require.NotNil(t, closed.LossReason)
	assert.Equal(t, models.LossReasonPrecio, *closed.LossReason)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.IsClosed())

	all, err := p.AllHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ghost := testutil.CreateTestRecord(lead.ID)
	err = p.CommitTransition(ctx, 1, ghost, move(ghost, models.StageContactoInicial, at))
	assert.True(t, persistence.IsRecordNotFound(err), "got %v", err)
}

func testConcurrentCommits(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	lead, record := seedRecord(ctx, t, p)

	const writers = 5

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			mine := record.Clone()
			entry := move(mine, models.StageContactoInicial, testutil.BaseTime.Add(time.Duration(i+1)*time.Minute))

			err := p.CommitTransition(ctx, 1, mine, entry)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				successes++
			case persistence.IsVersionConflict(err):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	got, err := p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)

	history, err := p.HistoryForRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func testUpdateDetails(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	lead, record := seedRecord(ctx, t, p)

	expected := testutil.BaseTime.AddDate(0, 1, 0)
	record.TotalValue = 1850000
	record.AssignedTo = "vendedor-1"
	record.ExpectedCloseDate = &expected

	require.NoError(t, p.UpdateRecordDetails(ctx, 1, record))
	assert.Equal(t, int64(2), record.Version)

	got, err := p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1850000, got.TotalValue, 0.001)
	assert.Equal(t, "vendedor-1", got.AssignedTo)
	require.NotNil(t, got.ExpectedCloseDate)
	assert.WithinDuration(t, expected, *got.ExpectedCloseDate, time.Second)

	err = p.UpdateRecordDetails(ctx, 1, record)
	assert.True(t, persistence.IsVersionConflict(err), "got %v", err)

	history, err := p.HistoryForRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func testRecordsFilter(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	seedRecord(ctx, t, p)
	seedRecord(ctx, t, p, testutil.InStage(models.StageNegociacion, testutil.BaseTime))
	seedRecord(ctx, t, p, testutil.InStage(models.StageCierreGanado, testutil.BaseTime))

	all, err := p.Records(ctx, persistence.RecordFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	open, err := p.Records(ctx, persistence.RecordFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	negotiating, err := p.Records(ctx, persistence.RecordFilter{Stage: models.StageNegociacion})
	require.NoError(t, err)
	require.Len(t, negotiating, 1)
	assert.Equal(t, models.StageNegociacion, negotiating[0].CurrentStage)

	closedOpen, err := p.Records(ctx, persistence.RecordFilter{Stage: models.StageCierreGanado, OpenOnly: true})
	require.NoError(t, err)
	assert.Empty(t, closedOpen)
}

func testDeleteLead(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	lead, record := seedRecord(ctx, t, p)
	require.NoError(t, p.CommitTransition(ctx, 1, record, move(record, models.StageContactoInicial, testutil.BaseTime.Add(time.Hour))))

	other, _ := seedRecord(ctx, t, p)

	require.NoError(t, p.DeleteLead(ctx, lead.ID))

	gone, err := p.LeadByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	orphan, err := p.RecordByLeadID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan)

	history, err := p.HistoryForRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	all, err := p.AllHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	kept, err := p.RecordByLeadID(ctx, other.ID)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	err = p.DeleteLead(ctx, lead.ID)
	assert.True(t, persistence.IsLeadNotFound(err), "got %v", err)
}

func testDefinition(t *testing.T, p persistence.Persistence) {
	ctx := context.Background()

	stages, transitions, err := p.Definition(ctx)
	require.NoError(t, err)
	assert.Empty(t, stages)
	assert.Empty(t, transitions)

	require.NoError(t, p.SaveDefinition(ctx, catalog.DefaultStages(), rules.DefaultRules()))

	stages, transitions, err = p.Definition(ctx)
	require.NoError(t, err)
	assert.Len(t, stages, len(catalog.DefaultStages()))
	assert.Len(t, transitions, len(rules.DefaultRules()))
	assert.Equal(t, models.StageLeadNuevo, stages[0].ID)

	c, err := catalog.New(stages)
	require.NoError(t, err)

	table, err := rules.New(c, transitions)
	require.NoError(t, err)

	rule, ok := table.GetRule(models.StageNegociacion, models.StageCierreGanado)
	require.True(t, ok)
	assert.True(t, rule.RequiresApproval)
	assert.ElementsMatch(t, []string{"total_value", "dni"}, rule.RequiredFields)

	auto := table.AutoRules(models.StageContactoInicial)
	require.Len(t, auto, 1)
	assert.Equal(t, 7, *auto[0].AutoTransitionDays)

	// saving again replaces instead of duplicating
	require.NoError(t, p.SaveDefinition(ctx, stages[:len(stages)-1], nil))

	stages, transitions, err = p.Definition(ctx)
	require.NoError(t, err)
	assert.Len(t, stages, len(catalog.DefaultStages())-1)
	assert.Empty(t, transitions)
}
