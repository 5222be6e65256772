package automation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/dukex/salesflow/pkg/persistence/file"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/dukex/salesflow/pkg/testutil"
	"github.com/stretchr/testify/require"
)

var seller = models.Actor{ID: "u-seller", Role: models.RoleVendedor}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = t
}

type harness struct {
	engine *pipeline.Engine
	store  *file.Persistence
	table  *rules.Table
	clock  *fakeClock
}

func newHarness(t *testing.T, table *rules.Table, opts ...pipeline.Option) *harness {
	t.Helper()

	h := &harness{
		store: file.NewPersistence(t.TempDir()),
		table: table,
		clock: &fakeClock{now: testutil.BaseTime},
	}

	opts = append([]pipeline.Option{pipeline.WithClock(h.clock.Now)}, opts...)
	h.engine = pipeline.NewEngine(quietLogger(), h.store, table, opts...)

	return h
}

// lead creates a record and walks it through stages at the current clock.
func (h *harness) lead(t *testing.T, stages ...models.StageID) *models.Lead {
	t.Helper()

	lead, err := h.engine.SaveLead(t.Context(), testutil.CreateTestLead())
	require.NoError(t, err)

	_, err = h.engine.CreateRecord(t.Context(), pipeline.CreateRequest{LeadID: lead.ID, Actor: seller})
	require.NoError(t, err)

	for _, stage := range stages {
		_, err := h.engine.MoveToStage(t.Context(), pipeline.MoveRequest{LeadID: lead.ID, ToStage: stage, Actor: seller})
		require.NoError(t, err)
	}

	return lead
}

func (h *harness) stage(t *testing.T, leadID string) *models.PipelineRecord {
	t.Helper()

	record, err := h.engine.RecordByLeadID(t.Context(), leadID)
	require.NoError(t, err)

	return record
}

func day(n int) time.Time {
	return testutil.BaseTime.AddDate(0, 0, n)
}

func defaultTable() *rules.Table {
	return rules.Default(catalog.Default())
}

// failingMover lists records but refuses every move.
type failingMover struct {
	records []*models.PipelineRecord
}

func (m failingMover) Records(context.Context, persistence.RecordFilter) ([]*models.PipelineRecord, error) {
	return m.records, nil
}

func (m failingMover) MoveToStage(context.Context, pipeline.MoveRequest) (*pipeline.MoveResult, error) {
	return nil, errors.Join(pipeline.ErrStoreUnavailable, errors.New("connection refused"))
}
