package file

import (
	"context"
	"sort"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/google/uuid"
)

// pipelineDocument is stored per lead under pipeline/<lead id>.json.
type pipelineDocument struct {
	Record  *models.PipelineRecord `json:"record"`
	History []models.HistoryEntry  `json:"history"`
}

func (fp *Persistence) readDocument(leadID string) (*pipelineDocument, error) {
	filePath, err := fp.path(pipelineDir, leadID)
	if err != nil {
		return nil, err
	}

	var doc pipelineDocument

	found, err := readJSON(filePath, &doc)
	if err != nil || !found {
		return nil, err
	}

	return &doc, nil
}

func (fp *Persistence) writeDocument(doc *pipelineDocument) error {
	filePath, err := fp.path(pipelineDir, doc.Record.LeadID)
	if err != nil {
		return err
	}

	return writeJSON(filePath, doc)
}

func (fp *Persistence) documents() ([]*pipelineDocument, error) {
	leadIDs, err := fp.listJSON(pipelineDir)
	if err != nil {
		return nil, err
	}

	docs := make([]*pipelineDocument, 0, len(leadIDs))

	for _, leadID := range leadIDs {
		doc, err := fp.readDocument(leadID)
		if err != nil {
			return nil, err
		}

		if doc != nil {
			docs = append(docs, doc)
		}
	}

	return docs, nil
}

func withEntryID(entry models.HistoryEntry, recordID string) models.HistoryEntry {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}

	entry.PipelineRecordID = recordID
	entry.ChangedAt = entry.ChangedAt.UTC()

	return entry
}

func (fp *Persistence) CreateRecord(_ context.Context, record *models.PipelineRecord, created models.HistoryEntry) error {
	if record.ID == "" {
		record.ID = uuid.Must(uuid.NewV7()).String()
	}

	leadPath, err := fp.path(leadsDir, record.LeadID)
	if err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	var lead models.Lead

	found, err := readJSON(leadPath, &lead)
	if err != nil {
		return err
	}

	if !found {
		return persistence.NewRecordError("CreateRecord", record.LeadID, persistence.ErrLeadNotFound)
	}

	existing, err := fp.readDocument(record.LeadID)
	if err != nil {
		return err
	}

	if existing != nil {
		return persistence.NewRecordError("CreateRecord", record.LeadID, persistence.ErrRecordAlreadyExists)
	}

	stored := record.Clone()
	stored.Version = 1

	err = fp.writeDocument(&pipelineDocument{
		Record:  stored,
		History: []models.HistoryEntry{withEntryID(created, record.ID)},
	})
	if err != nil {
		return err
	}

	record.Version = 1

	return nil
}

func (fp *Persistence) RecordByLeadID(_ context.Context, leadID string) (*models.PipelineRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	doc, err := fp.readDocument(leadID)
	if err != nil || doc == nil {
		return nil, err
	}

	return doc.Record, nil
}

func (fp *Persistence) Records(_ context.Context, filter persistence.RecordFilter) ([]*models.PipelineRecord, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	docs, err := fp.documents()
	if err != nil {
		return nil, err
	}

	records := make([]*models.PipelineRecord, 0, len(docs))
	for _, doc := range docs {
		if filter.Matches(doc.Record) {
			records = append(records, doc.Record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].ID < records[j].ID
		}

		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

// loadForUpdate returns the document after checking identity and version.
func (fp *Persistence) loadForUpdate(op string, expectedVersion int64, record *models.PipelineRecord) (*pipelineDocument, error) {
	doc, err := fp.readDocument(record.LeadID)
	if err != nil {
		return nil, err
	}

	if doc == nil || doc.Record.ID != record.ID {
		return nil, persistence.NewRecordError(op, record.LeadID, persistence.ErrRecordNotFound)
	}

	if doc.Record.Version != expectedVersion {
		return nil, persistence.NewRecordError(op, record.LeadID, persistence.ErrVersionConflict)
	}

	return doc, nil
}

func (fp *Persistence) CommitTransition(_ context.Context, expectedVersion int64, record *models.PipelineRecord, entry models.HistoryEntry) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	doc, err := fp.loadForUpdate("CommitTransition", expectedVersion, record)
	if err != nil {
		return err
	}

	stored := record.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = doc.Record.CreatedAt

	doc.Record = stored
	doc.History = append(doc.History, withEntryID(entry, record.ID))

	if err := fp.writeDocument(doc); err != nil {
		return err
	}

	record.Version = stored.Version

	return nil
}

func (fp *Persistence) UpdateRecordDetails(_ context.Context, expectedVersion int64, record *models.PipelineRecord) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	doc, err := fp.loadForUpdate("UpdateRecordDetails", expectedVersion, record)
	if err != nil {
		return err
	}

	stored := record.Clone()
	stored.Version = expectedVersion + 1
	stored.CreatedAt = doc.Record.CreatedAt
	doc.Record = stored

	if err := fp.writeDocument(doc); err != nil {
		return err
	}

	record.Version = stored.Version

	return nil
}

func sortHistory(entries []models.HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ChangedAt.Equal(entries[j].ChangedAt) {
			return entries[i].ID < entries[j].ID
		}

		return entries[i].ChangedAt.Before(entries[j].ChangedAt)
	})
}

func (fp *Persistence) HistoryForRecord(_ context.Context, recordID string) ([]models.HistoryEntry, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	docs, err := fp.documents()
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		if doc.Record.ID == recordID {
			entries := append([]models.HistoryEntry(nil), doc.History...)
			sortHistory(entries)

			return entries, nil
		}
	}

	return []models.HistoryEntry{}, nil
}

func (fp *Persistence) AllHistory(_ context.Context) ([]models.HistoryEntry, error) {
	fp.mu.RLock()
	defer fp.mu.RUnlock()

	docs, err := fp.documents()
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Record.ID < docs[j].Record.ID
	})

	entries := make([]models.HistoryEntry, 0)

	for _, doc := range docs {
		history := append([]models.HistoryEntry(nil), doc.History...)
		sortHistory(history)
		entries = append(entries, history...)
	}

	return entries, nil
}
