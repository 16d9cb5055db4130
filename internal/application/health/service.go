package health

import (
	"context"
	"time"

	corehealth "3tcapital/tokenbroker/internal/core/health"
)

// Metadata contains immutable metadata about the running service.
type Metadata struct {
	Service     string
	Version     string
	Environment string
}

// Service exposes health-check use cases to adapters.
type Service struct {
	meta      Metadata
	startedAt time.Time
	checkers  []corehealth.Checker
}

func NewService(meta Metadata, checkers ...corehealth.Checker) *Service {
	return &Service{
		meta:      meta,
		startedAt: time.Now().UTC(),
		checkers:  checkers,
	}
}

// Status returns the current availability snapshot. Checks run in order.
func (s *Service) Status(ctx context.Context) corehealth.Status {
	components := make([]corehealth.Component, 0, len(s.checkers))
	for _, checker := range s.checkers {
		components = append(components, checker.Check(ctx))
	}

	uptime := time.Since(s.startedAt)
	return corehealth.Status{
		Service:     s.meta.Service,
		Version:     s.meta.Version,
		Environment: s.meta.Environment,
		Status:      corehealth.Overall(components),
		StartedAt:   s.startedAt,
		Uptime:      uptime.String(),
		UptimeSecs:  int64(uptime.Seconds()),
		Components:  components,
	}
}
