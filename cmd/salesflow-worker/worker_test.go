package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/dukex/salesflow/pkg/cmd"
	"github.com/dukex/salesflow/pkg/messaging"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/persistence/file"
	"github.com/dukex/salesflow/pkg/pipeline"
	"github.com/dukex/salesflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func runWorker(t *testing.T, args ...string) error {
	t.Helper()

	root := &cli.Command{
		Name:     "salesflow-worker",
		Commands: []*cli.Command{NewRunCommand(), NewSweepCommand()},
	}

	return root.Run(t.Context(), append([]string{"salesflow-worker"}, args...))
}

func TestSweepCommand_MovesStaleRecords(t *testing.T) {
	dir := t.TempDir()
	store := file.NewPersistence(dir)

	// first boot stores the built-in definition
	require.NoError(t, runWorker(t, "sweep", "--database-url", dir, "--log-level", "error"))

	_, table, err := cmd.LoadPipeline(t.Context(), slog.Default(), store, "")
	require.NoError(t, err)

	engine := pipeline.NewEngine(slog.Default(), store, table)

	lead, err := engine.SaveLead(t.Context(), testutil.CreateTestLead())
	require.NoError(t, err)

	_, err = engine.CreateRecord(t.Context(), pipeline.CreateRequest{LeadID: lead.ID, Actor: models.SystemActor("test")})
	require.NoError(t, err)

	_, err = engine.MoveToStage(t.Context(), pipeline.MoveRequest{
		LeadID: lead.ID, ToStage: models.StageContactoInicial, Actor: models.SystemActor("test"),
	})
	require.NoError(t, err)

	// backdate the stage entry past the 7 day follow-up rule
	record, err := store.RecordByLeadID(t.Context(), lead.ID)
	require.NoError(t, err)

	record.StageEnteredAt = record.StageEnteredAt.AddDate(0, 0, -10)
	require.NoError(t, store.UpdateRecordDetails(t.Context(), record.Version, record))

	require.NoError(t, runWorker(t, "sweep", "--database-url", dir, "--log-level", "error"))

	record, err = store.RecordByLeadID(t.Context(), lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageSeguimiento, record.CurrentStage)
}

func TestSweepCommand_RequiresDatabase(t *testing.T) {
	require.Error(t, runWorker(t, "sweep"))
}

func TestWorker_Gateway(t *testing.T) {
	w := &worker{logger: slog.Default()}

	gatewayFor := func(args ...string) (messaging.Gateway, error) {
		var (
			gateway messaging.Gateway
			err     error
		)

		command := &cli.Command{
			Name:  "probe",
			Flags: NewRunCommand().Flags,
			Action: func(_ context.Context, command *cli.Command) error {
				gateway, err = w.gateway(command)

				return nil
			},
		}

		require.NoError(t, command.Run(t.Context(), append([]string{"probe", "--database-url", "x"}, args...)))

		return gateway, err
	}

	gateway, err := gatewayFor()
	require.NoError(t, err)
	assert.IsType(t, &messaging.LogGateway{}, gateway)

	gateway, err = gatewayFor("--gateway-url", "https://api.manychat.example/send", "--gateway-token", "secret")
	require.NoError(t, err)
	assert.IsType(t, &messaging.WebhookGateway{}, gateway)

	_, err = gatewayFor("--gateway-url", "not a url")
	require.Error(t, err)
}
