package gateway

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// sweepParser accepts 5- or 6-field expressions and descriptors like "@every 1m".
var sweepParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// StartSweeper runs SweepIdempotencyCache on the given schedule until the
// returned cron is stopped.
func (g *Gateway) StartSweeper(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithParser(sweepParser))
	if _, err := c.AddFunc(spec, g.sweepJob); err != nil {
		return nil, fmt.Errorf("StartSweeper: %w", err)
	}
	c.Start()
	g.logger.Info("idempotency cache sweeper started", zap.String("schedule", spec))
	return c, nil
}

func (g *Gateway) sweepJob() {
	if removed := g.SweepIdempotencyCache(); removed > 0 {
		g.logger.Debug("idempotency cache swept", zap.Int("removed", removed))
	}
}
