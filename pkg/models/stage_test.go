package models

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStageID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    StageID
		wantErr bool
	}{
		{name: "well known", raw: "LEAD_NUEVO", want: StageLeadNuevo},
		{name: "custom", raw: "VISITA_CONCESIONARIO", want: StageID("VISITA_CONCESIONARIO")},
		{name: "lowercase", raw: "lead_nuevo", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "leading digit", raw: "1_STAGE", wantErr: true},
		{name: "space", raw: "LEAD NUEVO", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStageID(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidStageID)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStageID_IsTerminal(t *testing.T) {
	assert.True(t, StageCierreGanado.IsTerminal())
	assert.True(t, StageCierrePerdido.IsTerminal())
	assert.False(t, StageSeguimiento.IsTerminal())
	assert.False(t, StageLeadNuevo.IsTerminal())
}

func TestStage_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	valid := Stage{ID: StageCalificacion, Name: "Calificación", Order: 3, IsActive: true, DefaultProbability: 25}
	require.NoError(t, validate.Struct(valid))

	invalid := valid
	invalid.DefaultProbability = 120
	assert.Error(t, validate.Struct(invalid))

	invalid = valid
	invalid.Name = ""
	assert.Error(t, validate.Struct(invalid))
}

func TestParseLossReason(t *testing.T) {
	reason, err := ParseLossReason("PRECIO")
	require.NoError(t, err)
	assert.Equal(t, LossReasonPrecio, reason)

	_, err = ParseLossReason("CARO")
	assert.ErrorIs(t, err, ErrInvalidLossReason)
}

func TestWholeDaysBetween(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		to   time.Time
		want int
	}{
		{name: "same instant", to: base, want: 0},
		{name: "just under a day", to: base.Add(23*time.Hour + 59*time.Minute), want: 0},
		{name: "exactly a day", to: base.Add(24 * time.Hour), want: 1},
		{name: "three and a half days", to: base.Add(84 * time.Hour), want: 3},
		{name: "clock skew", to: base.Add(-2 * time.Hour), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WholeDaysBetween(base, tt.to))
		})
	}
}

func TestPipelineRecord_Clone(t *testing.T) {
	won := true
	closedAt := time.Now()
	record := &PipelineRecord{ID: "r1", CurrentStage: StageCierreGanado, Won: &won, ClosedAt: &closedAt}

	clone := record.Clone()
	*clone.Won = false
	clone.CurrentStage = StageSeguimiento

	assert.True(t, *record.Won)
	assert.Equal(t, StageCierreGanado, record.CurrentStage)
	assert.True(t, record.IsClosed())
	assert.False(t, clone.IsClosed())
}

func TestHistoryEntry_From(t *testing.T) {
	now := time.Now()

	created := NewCreatedEntry("r1", StageLeadNuevo, "u1", now)
	_, ok := created.From()
	assert.False(t, ok)

	moved := NewTransitionedEntry("r1", StageLeadNuevo, StageContactoInicial, TransitionManual, 2, "u1", now)
	from, ok := moved.From()
	assert.True(t, ok)
	assert.Equal(t, StageLeadNuevo, from)
	assert.Equal(t, 2, moved.DurationInPreviousStageDays)
}

func TestLead_Value(t *testing.T) {
	lead := &Lead{
		Name:   " Juan Pérez ",
		DNI:    "30111222",
		Fields: map[string]string{"modelo_moto": "Honda Wave"},
	}

	assert.Equal(t, "Juan Pérez", lead.Value("name"))
	assert.Equal(t, "30111222", lead.Value("dni"))
	assert.Equal(t, "Honda Wave", lead.Value("modelo_moto"))
	assert.Empty(t, lead.Value("phone"))
	assert.Empty(t, lead.Value("unknown"))
}

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)

	p, err = ParsePeriod("QUARTER")
	require.NoError(t, err)

	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), p.End(start))

	_, err = ParsePeriod("WEEK")
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}
