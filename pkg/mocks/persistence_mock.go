package mocks

import (
	"context"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

var _ persistence.Persistence = (*MockPersistence)(nil)

func (m *MockPersistence) CreateRecord(ctx context.Context, record *models.PipelineRecord, created models.HistoryEntry) error {
	args := m.Called(ctx, record, created)

	return args.Error(0)
}

func (m *MockPersistence) RecordByLeadID(ctx context.Context, leadID string) (*models.PipelineRecord, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.PipelineRecord), args.Error(1)
}

func (m *MockPersistence) Records(ctx context.Context, filter persistence.RecordFilter) ([]*models.PipelineRecord, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.PipelineRecord), args.Error(1)
}

func (m *MockPersistence) CommitTransition(ctx context.Context, expectedVersion int64, record *models.PipelineRecord, entry models.HistoryEntry) error {
	args := m.Called(ctx, expectedVersion, record, entry)

	return args.Error(0)
}

func (m *MockPersistence) UpdateRecordDetails(ctx context.Context, expectedVersion int64, record *models.PipelineRecord) error {
	args := m.Called(ctx, expectedVersion, record)

	return args.Error(0)
}

func (m *MockPersistence) HistoryForRecord(ctx context.Context, recordID string) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.HistoryEntry), args.Error(1)
}

func (m *MockPersistence) AllHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.HistoryEntry), args.Error(1)
}

func (m *MockPersistence) SaveLead(ctx context.Context, lead *models.Lead) error {
	args := m.Called(ctx, lead)

	return args.Error(0)
}

func (m *MockPersistence) LeadByID(ctx context.Context, id string) (*models.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Lead), args.Error(1)
}

func (m *MockPersistence) DeleteLead(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) SaveDefinition(ctx context.Context, stages []models.Stage, rules []models.TransitionRule) error {
	args := m.Called(ctx, stages, rules)

	return args.Error(0)
}

func (m *MockPersistence) Definition(ctx context.Context) ([]models.Stage, []models.TransitionRule, error) {
	args := m.Called(ctx)

	var (
		stages []models.Stage
		rules  []models.TransitionRule
	)

	if v := args.Get(0); v != nil {
		stages = v.([]models.Stage)
	}

	if v := args.Get(1); v != nil {
		rules = v.([]models.TransitionRule)
	}

	return stages, rules, args.Error(2)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
