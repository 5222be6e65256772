package file

import (
	"context"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence"
	"github.com/google/uuid"
)

const (
	leadsDir    = "leads"
	pipelineDir = "pipeline"
)

func (fp *Persistence) SaveLead(_ context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.Must(uuid.NewV7()).String()
	}

	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	filePath, err := fp.path(leadsDir, lead.ID)
	if err != nil {
		return err
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	return writeJSON(filePath, lead)
}

func (fp *Persistence) LeadByID(_ context.Context, id string) (*models.Lead, error) {
	filePath, err := fp.path(leadsDir, id)
	if err != nil {
		return nil, err
	}

	fp.mu.RLock()
	defer fp.mu.RUnlock()

	var lead models.Lead

	found, err := readJSON(filePath, &lead)
	if err != nil || !found {
		return nil, err
	}

	return &lead, nil
}

// DeleteLead removes the pipeline document first so a crash never leaves an
// orphaned record behind a deleted lead.
func (fp *Persistence) DeleteLead(_ context.Context, id string) error {
	leadPath, err := fp.path(leadsDir, id)
	if err != nil {
		return err
	}

	pipelinePath, err := fp.path(pipelineDir, id)
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
		return persistence.NewRecordError("DeleteLead", id, persistence.ErrLeadNotFound)
	}

	if err := removeFile(pipelinePath); err != nil {
		return err
	}

	return removeFile(leadPath)
}
