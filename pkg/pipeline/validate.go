package pipeline

import (
	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
)

// Warning is an advisory diagnostic returned with a successful move.
type Warning string

const (
	// WarningSkippedStages: the move jumped over at least one active stage.
	WarningSkippedStages Warning = "SKIPPED_STAGES"
	// WarningBackward: the move went to a lower order without reopening a closed deal.
	WarningBackward Warning = "BACKWARD_MOVE"
)

// Field names resolved on the record instead of the lead.
const (
	FieldTotalValue        = "total_value"
	FieldExpectedCloseDate = "expected_close_date"
	FieldAssignedTo        = "assigned_to"
)

func isRecordField(field string) bool {
	switch field {
	case FieldTotalValue, FieldExpectedCloseDate, FieldAssignedTo:
		return true
	default:
		return false
	}
}

func recordHasField(record *models.PipelineRecord, field string) bool {
	switch field {
	case FieldTotalValue:
		return record.TotalValue > 0
	case FieldExpectedCloseDate:
		return record.ExpectedCloseDate != nil
	case FieldAssignedTo:
		return record.AssignedTo != ""
	default:
		return false
	}
}

func needsLead(required []string) bool {
	for _, field := range required {
		if !isRecordField(field) {
			return true
		}
	}

	return false
}

// missingFields returns the required fields that are empty, in rule order. A nil
// lead counts as having no fields at all.
func missingFields(required []string, record *models.PipelineRecord, lead *models.Lead) []string {
	missing := make([]string, 0)

	for _, field := range required {
		if isRecordField(field) {
			if !recordHasField(record, field) {
				missing = append(missing, field)
			}

			continue
		}

		if lead == nil || lead.Value(field) == "" {
			missing = append(missing, field)
		}
	}

	return missing
}

// orderWarnings only looks at moves between open stages. Closing a deal is never
// a skip, and reopening is never a regression.
func orderWarnings(c *catalog.Catalog, from, to models.StageID) []Warning {
	warnings := make([]Warning, 0)

	if from.IsTerminal() || to.IsTerminal() {
		return warnings
	}

	fromStage, err := c.GetStage(from)
	if err != nil {
		return warnings
	}

	toStage, err := c.GetStage(to)
	if err != nil {
		return warnings
	}

	if toStage.Order < fromStage.Order {
		return append(warnings, WarningBackward)
	}

	skipped := 0

	for _, stage := range c.ListActiveStages() {
		if !stage.IsTerminal() && stage.Order > fromStage.Order && stage.Order < toStage.Order {
			skipped++
		}
	}

	if skipped > 0 {
		warnings = append(warnings, WarningSkippedStages)
	}

	return warnings
}
