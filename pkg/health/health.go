// Package health implements the status record and periodic publisher
// every service exposes (§4.1).
package health

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/bodybroker/core/pkg/bus"
)

// Status is one of the three levels a service can report.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Record is the structured health payload published every 30s (§4.1).
type Record struct {
	Service        string            `json:"service"`
	Status         Status            `json:"status"`
	Issues         []string          `json:"issues,omitempty"`
	Subcomponents  map[string]Status `json:"subcomponents,omitempty"`
	QueueDepth     *int              `json:"queue_depth,omitempty"`
	WorkersLive    *int              `json:"workers_live,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
}

// Checker reports the current Record for a service; implementations
// inspect bus/repo connectivity and any subcomponent-specific signal
// (queue depth, worker liveness).
type Checker func(ctx context.Context) Record

// Publisher periodically checks and publishes a Record to the service's
// own health subject and, when not healthy, also to the system-wide
// subject (§4.1).
type Publisher struct {
	bus           bus.Publisher
	check         Checker
	serviceSubj   string
	systemSubj    string
	interval      time.Duration
	logger        *zap.Logger
}

// NewPublisher builds a Publisher. serviceSubj is always published to;
// systemSubj is additionally published to when status is not healthy.
func NewPublisher(b bus.Publisher, check Checker, serviceSubj, systemSubj string, logger *zap.Logger) *Publisher {
	return &Publisher{
		bus:         b,
		check:       check,
		serviceSubj: serviceSubj,
		systemSubj:  systemSubj,
		interval:    30 * time.Second,
		logger:      logger,
	}
}

// Run blocks publishing Records every interval until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publishOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

func (p *Publisher) publishOnce(ctx context.Context) {
	rec := p.check(ctx)
	rec.Timestamp = time.Now().UTC()

	data, err := json.Marshal(rec)
	if err != nil {
		p.logger.Error("health: marshal record", zap.Error(err))
		return
	}

	if err := p.bus.Publish(ctx, p.serviceSubj, data); err != nil {
		p.logger.Warn("health: publish service status", zap.Error(err))
	}
	if rec.Status != StatusHealthy && p.systemSubj != "" {
		if err := p.bus.Publish(ctx, p.systemSubj, data); err != nil {
			p.logger.Warn("health: publish system status", zap.Error(err))
		}
	}
}
