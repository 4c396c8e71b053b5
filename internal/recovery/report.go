package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
	"github.com/fenwick-labs/tidelog/internal/strategy"
)

// Overall health grades derived from the recovery success rate.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusFailed   = "failed"
)

// StatusReport is the operator-facing view of recovery health.
type StatusReport struct {
	OverallStatus   string                        `json:"overall_status"`
	GeneratedAt     time.Time                     `json:"generated_at"`
	Stats           Stats                         `json:"stats"`
	RecentFailures  []model.FailureClassification `json:"recent_failures"`
	SystemState     strategy.SystemState          `json:"system_state"`
	Recommendations []string                      `json:"recommendations"`
}

// reportFailureWindow is how many recent classifications the report lists.
const reportFailureWindow = 10

// GenerateStatusReport grades overall health from the success rate and
// derives recommendations from resource pressure and recent failure
// frequency.
func (m *Manager) GenerateStatusReport(ctx context.Context) StatusReport {
	m.mu.Lock()
	stats := m.stats.snapshot()
	recent := make([]model.FailureClassification, len(m.recent))
	copy(recent, m.recent)
	m.mu.Unlock()

	if len(recent) > reportFailureWindow {
		recent = recent[len(recent)-reportFailureWindow:]
	}

	var state strategy.SystemState
	if m.monitor != nil {
		state = m.monitor.Snapshot(ctx)
	}

	return StatusReport{
		OverallStatus:   gradeStatus(stats),
		GeneratedAt:     time.Now().UTC(),
		Stats:           stats,
		RecentFailures:  recent,
		SystemState:     state,
		Recommendations: m.recommend(recent, state),
	}
}

func gradeStatus(stats Stats) string {
	if stats.Recovered+stats.Failed == 0 {
		return StatusHealthy
	}
	switch {
	case stats.SuccessRate > 0.9:
		return StatusHealthy
	case stats.SuccessRate > 0.7:
		return StatusDegraded
	default:
		return StatusFailed
	}
}

// networkNoiseFloor is how many recent network failures trigger a
// connectivity recommendation.
const networkNoiseFloor = 3

func (m *Manager) recommend(recent []model.FailureClassification, state strategy.SystemState) []string {
	var recs []string

	if state.DiskPressure || (m.cfg.DiskFloorBytes > 0 && state.DiskFreeBytes > 0 && state.DiskFreeBytes < m.cfg.DiskFloorBytes) {
		recs = append(recs, fmt.Sprintf("free disk space (below %d bytes)", m.cfg.DiskFloorBytes))
	}
	if state.MemoryPressure {
		recs = append(recs, "reduce memory usage or raise limits")
	}

	var network int
	var corruption bool
	for _, c := range recent {
		switch c.FailureType {
		case model.FailureNetwork:
			network++
		case model.FailureCorruption:
			corruption = true
		}
	}
	if network >= networkNoiseFloor {
		recs = append(recs, "check network connectivity, repeated network failures observed")
	}
	if corruption {
		recs = append(recs, "data corruption observed, restore from a verified backup")
	}
	return recs
}
