package automation

import (
	"context"
	"log/slog"

	"github.com/dukex/salesflow/pkg/eventbus"
	"github.com/dukex/salesflow/pkg/events"
	"github.com/dukex/salesflow/pkg/messaging"
	"github.com/dukex/salesflow/pkg/models"
	"github.com/dukex/salesflow/pkg/template"
)

// AutomationSource resolves the messages configured for a stage.
type AutomationSource interface {
	AutomationsFor(stage models.StageID) []models.StageAutomation
}

type LeadReader interface {
	LeadByID(ctx context.Context, id string) (*models.Lead, error)
}

type StageReader interface {
	GetStage(id models.StageID) (models.Stage, error)
}

type NotificationRecorder interface {
	RecordNotification(channel string, err error)
}

// Notifier sends the stage automations of the destination stage after every
// committed transition. Delivery problems are logged, never propagated: the
// transition has already happened.
type Notifier struct {
	automations AutomationSource
	stages      StageReader
	leads       LeadReader
	gateway     messaging.Gateway
	recorder    NotificationRecorder
	logger      *slog.Logger
}

func NewNotifier(logger *slog.Logger, automations AutomationSource, stages StageReader, leads LeadReader, gateway messaging.Gateway) *Notifier {
	return &Notifier{
		automations: automations,
		stages:      stages,
		leads:       leads,
		gateway:     gateway,
		logger:      logger.With("module", "notifier"),
	}
}

func (n *Notifier) WithRecorder(recorder NotificationRecorder) *Notifier {
	n.recorder = recorder

	return n
}

// Register subscribes the notifier to stage changes.
func (n *Notifier) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.StageChangedEvent, n.HandleStageChanged)
}

// HandleStageChanged is an eventbus.EventHandler.
func (n *Notifier) HandleStageChanged(ctx context.Context, event any) error {
	var changed *events.StageChanged

	switch e := event.(type) {
	case *events.StageChanged:
		changed = e
	case events.StageChanged:
		changed = &e
	default:
		n.logger.WarnContext(ctx, "Unexpected event", "type", event)

		return nil
	}

	automations := n.automations.AutomationsFor(changed.To)
	if len(automations) == 0 {
		return nil
	}

	lead, err := n.leads.LeadByID(ctx, changed.LeadID)
	if err != nil || lead == nil {
		n.logger.WarnContext(ctx, "Lead not available for automations", "lead_id", changed.LeadID, "error", err)

		return nil
	}

	stage, _ := n.stages.GetStage(changed.To)

	data := template.MessageData{
		Lead:   *lead,
		Record: changed.Record,
		Stage:  stage,
		From:   changed.From,
	}

	for _, automation := range automations {
		n.deliver(ctx, automation, data)
	}

	return nil
}

func (n *Notifier) deliver(ctx context.Context, automation models.StageAutomation, data template.MessageData) {
	logger := n.logger.With("lead_id", data.Lead.ID, "automation", automation.Name, "stage", automation.Stage)

	text, err := template.RenderMessage(automation.Template, data)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to render automation", "error", err)
		n.record(automation.Channel, err)

		return
	}

	err = n.gateway.Send(ctx, messaging.Message{
		LeadID:     data.Lead.ID,
		Phone:      data.Lead.Phone,
		Channel:    automation.Channel,
		Automation: automation.Name,
		Text:       text,
	})
	n.record(automation.Channel, err)

	if err != nil {
		logger.ErrorContext(ctx, "Failed to deliver automation", "error", err)

		return
	}

	logger.InfoContext(ctx, "Automation delivered")
}

func (n *Notifier) record(channel string, err error) {
	if n.recorder != nil {
		n.recorder.RecordNotification(channel, err)
	}
}
