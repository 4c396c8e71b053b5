package recovery

import (
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Stats are the manager's rolling recovery counters. A copy is returned to
// callers; the live struct is guarded by the manager's mutex.
type Stats struct {
	TotalFailures       int64                          `json:"total_failures"`
	Recovered           int64                          `json:"recovered"`
	Failed              int64                          `json:"failed"`
	ManualInterventions int64                          `json:"manual_interventions"`
	ByFailureType       map[model.FailureType]int64    `json:"by_failure_type"`
	ByAction            map[model.RecoveryAction]int64 `json:"by_action"`
	AvgRecoveryTime     time.Duration                  `json:"avg_recovery_time"`
	SuccessRate         float64                        `json:"success_rate"`
}

func newStats() Stats {
	return Stats{
		ByFailureType: make(map[model.FailureType]int64),
		ByAction:      make(map[model.RecoveryAction]int64),
	}
}

// record folds one finished recovery attempt into the counters. The
// average recovery time is a running mean over all attempts.
func (s *Stats) record(failureType model.FailureType, result model.RecoveryResult) {
	if result.Success {
		s.Recovered++
	} else {
		s.Failed++
	}
	s.ByFailureType[failureType]++
	s.ByAction[result.Action]++

	attempts := s.Recovered + s.Failed
	s.AvgRecoveryTime += (result.Duration - s.AvgRecoveryTime) / time.Duration(attempts)
	s.SuccessRate = float64(s.Recovered) / float64(attempts)
}

// snapshot copies the stats, including the maps.
func (s *Stats) snapshot() Stats {
	out := *s
	out.ByFailureType = make(map[model.FailureType]int64, len(s.ByFailureType))
	for k, v := range s.ByFailureType {
		out.ByFailureType[k] = v
	}
	out.ByAction = make(map[model.RecoveryAction]int64, len(s.ByAction))
	for k, v := range s.ByAction {
		out.ByAction[k] = v
	}
	return out
}
