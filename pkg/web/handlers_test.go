package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dukex/salesflow/pkg/analytics"
	"github.com/dukex/salesflow/pkg/catalog"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence/file"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/dukex/salesflow/pkg/rules"
	"github.com/dukex/salesflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app   *fiber.App
	store *file.Persistence
}

func setupTestApp(t *testing.T) testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	table := rules.Default(catalog.Default())

	engine := pipeline.NewEngine(logger, store, table)
	aggregator := analytics.New(logger, store, table.Catalog())

	handlers := web.NewAPIHandlers(logger, engine, aggregator, validator.New(validator.WithRequiredStructEnabled()), store)

	app := fiber.New()
	handlers.Register(app)

	return testAPI{app: app, store: store}
}

func (a testAPI) do(t *testing.T, method, path string, body any, role models.Role) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	if role != "" {
		req.Header.Set(web.ActorIDHeader, "u-"+string(role))
		req.Header.Set(web.ActorRoleHeader, string(role))
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	}

	return resp.StatusCode, decoded
}

func (a testAPI) createLead(t *testing.T, body web.LeadRequest) string {
	t.Helper()

	status, lead := a.do(t, http.MethodPost, "/leads", body, "")
	require.Equal(t, http.StatusCreated, status, lead)

	status, record := a.do(t, http.MethodPost, "/leads/"+lead["id"].(string)+"/pipeline",
		web.CreatePipelineRequest{TotalValue: 2500000}, models.RoleVendedor)
	require.Equal(t, http.StatusCreated, status, record)
	assert.Equal(t, "LEAD_NUEVO", record["current_stage"])

	return lead["id"].(string)
}

func stagePtr(s string) *string {
	return &s
}

func TestAPIHandlers_ListStages(t *testing.T) {
	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/pipeline/stages", nil, "")
	require.Equal(t, http.StatusOK, status)

	stages := body["stages"].([]any)
	require.Len(t, stages, 9)
	assert.Equal(t, "LEAD_NUEVO", stages[0].(map[string]any)["id"])
}

func TestAPIHandlers_StageAdministration(t *testing.T) {
	api := setupTestApp(t)

	stage := web.StageRequest{ID: "VISITA_LOCAL", Name: "Visita al local", Order: 10, DefaultProbability: 45, Color: "#112233"}

	status, body := api.do(t, http.MethodPost, "/pipeline/stages", stage, models.RoleVendedor)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["type"])

	status, _ = api.do(t, http.MethodPost, "/pipeline/stages", stage, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodPost, "/pipeline/stages", stage, models.RoleAdmin)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, true, body["is_active"])

	status, _ = api.do(t, http.MethodPost, "/pipeline/stages", stage, models.RoleAdmin)
	assert.Equal(t, http.StatusConflict, status)

	clash := web.StageRequest{ID: "OTRA_ETAPA", Name: "Otra", Order: 10}
	status, _ = api.do(t, http.MethodPost, "/pipeline/stages", clash, models.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, status)

	stored, _, err := api.store.Definition(t.Context())
	require.NoError(t, err)
	assert.Len(t, stored, 10)

	status, body = api.do(t, http.MethodPost, "/pipeline/stages/CIERRE_GANADO/deactivate", nil, models.RoleAdmin)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "protected_stage", body["type"])

	status, _ = api.do(t, http.MethodPost, "/pipeline/stages/NO_EXISTE/deactivate", nil, models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = api.do(t, http.MethodPost, "/pipeline/stages/VISITA_LOCAL/deactivate", nil, models.RoleAdmin)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_active"])

	_, body = api.do(t, http.MethodGet, "/pipeline/stages", nil, "")
	assert.Len(t, body["stages"], 9)
}

func TestAPIHandlers_TransitionAdministration(t *testing.T) {
	api := setupTestApp(t)

	shortcut := web.TransitionRequest{FromStage: "LEAD_NUEVO", ToStage: "CALIFICACION", IsAllowed: true}

	status, body := api.do(t, http.MethodPut, "/pipeline/transitions", shortcut, models.RoleVendedor)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "forbidden", body["type"])

	leadID := api.createLead(t, web.LeadRequest{Name: "Carlos Ruiz", Phone: "+543794333333"})
	path := "/leads/" + leadID + "/pipeline"

	status, body = api.do(t, http.MethodPatch, path, web.UpdatePipelineRequest{ToStage: stagePtr("CALIFICACION")}, models.RoleVendedor)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "transition_not_allowed", body["type"])

	status, body = api.do(t, http.MethodPut, "/pipeline/transitions", shortcut, models.RoleAdmin)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "LEAD_NUEVO", body["from_stage"])
	assert.Equal(t, true, body["is_allowed"])

	status, body = api.do(t, http.MethodPatch, path, web.UpdatePipelineRequest{ToStage: stagePtr("CALIFICACION")}, models.RoleVendedor)
	require.Equal(t, http.StatusOK, status, body)
	assert.Contains(t, body["warnings"], "SKIPPED_STAGES")

	_, stored, err := api.store.Definition(t.Context())
	require.NoError(t, err)

	found := false
	for _, rule := range stored {
		if rule.From == models.StageLeadNuevo && rule.To == models.StageCalificacion {
			found = rule.IsAllowed
		}
	}
	assert.True(t, found)

	tests := []struct {
		name           string
		request        web.TransitionRequest
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "terminal stage leaving outside the reopen stage",
			request:        web.TransitionRequest{FromStage: "CIERRE_PERDIDO", ToStage: "NEGOCIACION", IsAllowed: true},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   "terminal_outbound",
		},
		{
			name:           "unknown stage",
			request:        web.TransitionRequest{FromStage: "LEAD_NUEVO", ToStage: "NO_EXISTE", IsAllowed: true},
			expectedStatus: http.StatusNotFound,
			expectedType:   "stage_not_found",
		},
		{
			name:           "self transition",
			request:        web.TransitionRequest{FromStage: "LEAD_NUEVO", ToStage: "LEAD_NUEVO", IsAllowed: true},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "malformed stage id",
			request:        web.TransitionRequest{FromStage: "lead nuevo", ToStage: "CALIFICACION"},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, http.MethodPut, "/pipeline/transitions", tt.request, models.RoleAdmin)
			assert.Equal(t, tt.expectedStatus, status, body)
			assert.Equal(t, tt.expectedType, body["type"])
		})
	}

	status, body = api.do(t, http.MethodGet, "/pipeline/transitions", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["transitions"], len(stored))
}

func TestAPIHandlers_StageTargets(t *testing.T) {
	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/pipeline/stages/LEAD_NUEVO/targets", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["targets"], 2)

	status, _ = api.do(t, http.MethodGet, "/pipeline/stages/lowercase/targets", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodGet, "/pipeline/stages/DESCONOCIDA/targets", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_PipelineLifecycle(t *testing.T) {
	api := setupTestApp(t)

	leadID := api.createLead(t, web.LeadRequest{Name: "Juan Pérez", Email: "juan@example.com"})
	path := "/leads/" + leadID + "/pipeline"

	status, body := api.do(t, http.MethodPost, path, nil, models.RoleVendedor)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "conflict", body["type"])

	status, body = api.do(t, http.MethodPatch, path,
		web.UpdatePipelineRequest{ToStage: stagePtr("CONTACTO_INICIAL"), Notes: "llamado"}, models.RoleVendedor)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "CONTACTO_INICIAL", body["record"].(map[string]any)["current_stage"])
	assert.Equal(t, "LEAD_NUEVO", body["history_entry"].(map[string]any)["from_stage"])
	assert.Empty(t, body["warnings"])

	tests := []struct {
		name           string
		request        web.UpdatePipelineRequest
		expectedStatus int
		expectedType   string
	}{
		{
			name:           "same stage",
			request:        web.UpdatePipelineRequest{ToStage: stagePtr("CONTACTO_INICIAL")},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "same_stage",
		},
		{
			name:           "unknown stage",
			request:        web.UpdatePipelineRequest{ToStage: stagePtr("bogus")},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "invalid_stage",
		},
		{
			name:           "transition not in the table",
			request:        web.UpdatePipelineRequest{ToStage: stagePtr("NEGOCIACION")},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   "transition_not_allowed",
		},
		{
			name:           "lead without phone",
			request:        web.UpdatePipelineRequest{ToStage: stagePtr("CALIFICACION")},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   "missing_fields",
		},
		{
			name:           "lost without reason",
			request:        web.UpdatePipelineRequest{ToStage: stagePtr("CIERRE_PERDIDO")},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "missing_loss_reason",
		},
		{
			name:           "unknown loss reason",
			request:        web.UpdatePipelineRequest{ToStage: stagePtr("CIERRE_PERDIDO"), LossReason: stagePtr("ALIENS")},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
		{
			name:           "empty update",
			request:        web.UpdatePipelineRequest{},
			expectedStatus: http.StatusBadRequest,
			expectedType:   "validation_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := api.do(t, http.MethodPatch, path, tt.request, models.RoleVendedor)
			assert.Equal(t, tt.expectedStatus, status, body)
			assert.Equal(t, tt.expectedType, body["type"])
		})
	}

	assignee := "u-ana"
	status, body = api.do(t, http.MethodPatch, path,
		web.UpdatePipelineRequest{AssignedTo: &assignee, ToStage: stagePtr("CIERRE_PERDIDO"), LossReason: stagePtr("precio")},
		models.RoleVendedor)
	require.Equal(t, http.StatusOK, status, body)

	record := body["record"].(map[string]any)
	assert.Equal(t, "CIERRE_PERDIDO", record["current_stage"])
	assert.Equal(t, "PRECIO", record["loss_reason"])
	assert.Equal(t, "u-ana", record["assigned_to"])

	status, body = api.do(t, http.MethodGet, path+"/history", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["history"], 3)

	status, body = api.do(t, http.MethodGet, path+"/targets", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["targets"], 1)
}

func TestAPIHandlers_RejectedMoveKeepsDealFields(t *testing.T) {
	api := setupTestApp(t)

	leadID := api.createLead(t, web.LeadRequest{Name: "Rosa Benítez", Phone: "+543794222222"})
	path := "/leads/" + leadID + "/pipeline"

	value := 900000.0
	assignee := "u-rosa"
	status, body := api.do(t, http.MethodPatch, path,
		web.UpdatePipelineRequest{ToStage: stagePtr("NEGOCIACION"), TotalValue: &value, AssignedTo: &assignee},
		models.RoleVendedor)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "transition_not_allowed", body["type"])

	status, body = api.do(t, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 2500000, body["total_value"], 0)
	assert.Empty(t, body["assigned_to"])
	assert.InDelta(t, 1, body["version"], 0)

	status, body = api.do(t, http.MethodPatch, path,
		web.UpdatePipelineRequest{ToStage: stagePtr("CONTACTO_INICIAL"), TotalValue: &value, AssignedTo: &assignee},
		models.RoleVendedor)
	require.Equal(t, http.StatusOK, status, body)

	record := body["record"].(map[string]any)
	assert.Equal(t, "CONTACTO_INICIAL", record["current_stage"])
	assert.InDelta(t, 900000, record["total_value"], 0)
	assert.Equal(t, "u-rosa", record["assigned_to"])
	assert.InDelta(t, 2, record["version"], 0)
}

func TestAPIHandlers_ApprovalRequired(t *testing.T) {
	api := setupTestApp(t)

	leadID := api.createLead(t, web.LeadRequest{Name: "María Gómez", Phone: "+543794111111", DNI: "28999111"})
	path := "/leads/" + leadID + "/pipeline"

	for _, stage := range []string{"CONTACTO_INICIAL", "CALIFICACION", "PRESENTACION", "NEGOCIACION"} {
		status, body := api.do(t, http.MethodPatch, path, web.UpdatePipelineRequest{ToStage: stagePtr(stage)}, models.RoleVendedor)
		require.Equal(t, http.StatusOK, status, body)
	}

	status, body := api.do(t, http.MethodPatch, path, web.UpdatePipelineRequest{ToStage: stagePtr("CIERRE_GANADO")}, models.RoleVendedor)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "approval_required", body["type"])

	status, body = api.do(t, http.MethodPatch, path, web.UpdatePipelineRequest{ToStage: stagePtr("CIERRE_GANADO")}, models.RoleSupervisor)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, true, body["record"].(map[string]any)["won"])

	// closed deals no longer accept deal edits
	value := 100.0
	status, _ = api.do(t, http.MethodPatch, path, web.UpdatePipelineRequest{TotalValue: &value}, models.RoleSupervisor)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_Errors(t *testing.T) {
	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/leads/missing/pipeline", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "not_found", body["type"])

	status, _ = api.do(t, http.MethodPost, "/leads/missing/pipeline", nil, models.RoleVendedor)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodPost, "/leads", web.LeadRequest{Email: "not-an-email"}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = api.do(t, http.MethodPatch, "/leads/missing/pipeline", web.UpdatePipelineRequest{ToStage: stagePtr("CONTACTO_INICIAL")}, "")
	assert.Equal(t, http.StatusBadRequest, status, "actor headers are required")

	req := httptest.NewRequest(http.MethodPost, "/leads", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestAPIHandlers_DeleteLead(t *testing.T) {
	api := setupTestApp(t)

	leadID := api.createLead(t, web.LeadRequest{Name: "Carlos Ruiz"})

	status, _ := api.do(t, http.MethodDelete, "/leads/"+leadID, nil, models.RoleAdmin)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = api.do(t, http.MethodGet, "/leads/"+leadID+"/pipeline", nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodGet, "/leads/"+leadID, nil, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = api.do(t, http.MethodDelete, "/leads/"+leadID, nil, models.RoleAdmin)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPIHandlers_Analytics(t *testing.T) {
	api := setupTestApp(t)

	api.createLead(t, web.LeadRequest{Name: "Juan Pérez"})

	status, body := api.do(t, http.MethodGet, "/pipeline/metrics", nil, "")
	require.Equal(t, http.StatusOK, status)

	metrics := body["metrics"].(map[string]any)
	assert.Len(t, metrics, 9)
	assert.InDelta(t, 1, metrics["LEAD_NUEVO"].(map[string]any)["total_leads"], 0)

	status, body = api.do(t, http.MethodGet, "/pipeline/forecast?period=quarter", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "QUARTER", body["period"])

	status, _ = api.do(t, http.MethodGet, "/pipeline/forecast?period=decade", nil, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	api := setupTestApp(t)

	status, body := api.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}
