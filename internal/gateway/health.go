package gateway

import (
	"context"
	"log/slog"
)

const (
	ServiceName  = "Anna Logica Clean"
	StatusHealth = "healthy"

	AWSConnected    = "connected"
	AWSFallbackMode = "fallback mode"
)

// isoMillis is RFC 3339 in UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z"

type HealthReport struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	AWS       string `json:"aws"`
	Timestamp string `json:"timestamp"`
}

// Health probes the provider without side effects. The gateway always reports
// itself healthy; only the aws field reflects provider reachability.
func (s *Service) Health(ctx context.Context) (report HealthReport) {
	report = HealthReport{
		Status:    StatusHealth,
		Service:   ServiceName,
		AWS:       AWSFallbackMode,
		Timestamp: s.now().UTC().Format(isoMillis),
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("health probe panicked", "panic", r)
			report.AWS = AWSFallbackMode
		}
		s.recorder.RecordHealthProbe(report.AWS)
	}()

	// Any completed exchange counts as connected, whatever its status. Earlier
	// releases reported a non-2xx probe as "disconnected"; that value is no
	// longer produced.
	status, err := s.provider.Probe(ctx)
	if err != nil {
		slog.Warn("provider unreachable", "error", err)
		report.AWS = AWSFallbackMode
		return report
	}
	if status >= 300 {
		slog.Debug("provider probe returned error status", "status", status)
	}
	report.AWS = AWSConnected

	return report
}
