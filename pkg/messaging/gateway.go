// Package messaging delivers automation messages to leads through an external
// chat gateway.
package messaging

import (
	"context"
	"errors"
	"log/slog"
)

var (
	ErrNoRecipient     = errors.New("message has no recipient")
	ErrGatewayRejected = errors.New("gateway rejected the message")
	ErrGatewayServer   = errors.New("gateway server error")
)

// Message is one outbound text for a lead.
type Message struct {
	LeadID     string `json:"lead_id"`
	Phone      string `json:"phone"`
	Channel    string `json:"channel,omitempty"`
	Automation string `json:"automation"`
	Text       string `json:"text"`
}

type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

// LogGateway only logs what would be sent. Used for dry runs and local setups.
type LogGateway struct {
	logger *slog.Logger
}

func NewLogGateway(logger *slog.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(ctx context.Context, msg Message) error {
	if msg.Phone == "" {
		return ErrNoRecipient
	}

	g.logger.InfoContext(ctx, "Message (dry run)",
		"lead_id", msg.LeadID,
		"phone", msg.Phone,
		"channel", msg.Channel,
		"automation", msg.Automation,
		"text", msg.Text)

	return nil
}
