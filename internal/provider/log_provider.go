package provider

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/retention-engine/internal/model"
)

// LogProvider logs messages instead of sending them. It stands in for a
// real channel in development. FailRate in [0,1] makes a share of sends
// fail so the FAILED path can be exercised end to end.
type LogProvider struct {
	channel  model.Channel
	log      *zap.Logger
	FailRate float64
}

func NewLogProvider(ch model.Channel, log *zap.Logger) *LogProvider {
	return &LogProvider{channel: ch, log: log}
}

func (p *LogProvider) Channel() model.Channel { return p.channel }

func (p *LogProvider) Send(ctx context.Context, msg Message) (string, error) {
	if p.FailRate > 0 && rand.Float64() < p.FailRate {
		return "", fmt.Errorf("%s: simulated send failure", p.channel)
	}
	id := "log-" + uuid.NewString()
	p.log.Info("message not sent, log provider",
		zap.String("channel", string(p.channel)),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_len", len(msg.Body)),
		zap.String("provider_message_id", id),
	)
	return id, nil
}

var _ Provider = (*LogProvider)(nil)
