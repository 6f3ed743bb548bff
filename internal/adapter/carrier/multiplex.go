package carrier

import (
	"context"
	"fmt"

	"alfred-ai/internal/domain"
)

// Sender is a single-channel carrier, implemented by EmailCarrier and
// SMSCarrier.
type Sender interface {
	Send(ctx context.Context, channel domain.LeadChannel, lead domain.Lead, content string) (externalID string, err error)
}

// Multiplexer dispatches a Send call to the carrier registered for the
// message's channel, implementing engagement.Carrier as a single
// collaborator the Job Queue handler can hand to Engine.ProcessDispatchJob
// regardless of which channel the job targets.
type Multiplexer struct {
	byChannel map[domain.LeadChannel]Sender
}

// NewMultiplexer builds a Multiplexer from a channel-to-carrier map.
func NewMultiplexer(byChannel map[domain.LeadChannel]Sender) *Multiplexer {
	return &Multiplexer{byChannel: byChannel}
}

// Send implements engagement.Carrier.
func (m *Multiplexer) Send(ctx context.Context, channel domain.LeadChannel, lead domain.Lead, content string) (string, error) {
	c, ok := m.byChannel[channel]
	if !ok {
		return "", fmt.Errorf("carrier multiplexer: no carrier registered for channel %q", channel)
	}
	return c.Send(ctx, channel, lead, content)
}
