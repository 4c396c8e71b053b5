// Package classify turns raw sync errors into failure classifications.
//
// Classification is a pure function: identical inputs always produce the
// identical judgment. No state is read or written here - the recovery
// manager acts on the result.
package classify

import (
	"strings"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// DefaultFailureThreshold is the retry count at which a failure's severity
// is escalated one level.
const DefaultFailureThreshold = 3

// Classifier derives FailureClassifications from raw errors.
// The zero value is not usable; call New.
type Classifier struct {
	failureThreshold int
}

// New returns a classifier with the given escalation threshold.
// A non-positive threshold falls back to the default.
func New(failureThreshold int) *Classifier {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &Classifier{failureThreshold: failureThreshold}
}

// Classify derives the failure type, severity, recoverability, recommended
// action, and recovery time estimate for one failed operation.
//
// Invariant: a critical classification is never recoverable.
func (c *Classifier) Classify(op model.SyncOperation, syncErr model.SyncError) model.FailureClassification {
	failureType := detectType(syncErr)
	severity := baseSeverity[failureType]
	if op.RetryCount >= c.failureThreshold {
		severity = severity.Escalate()
	}

	return model.FailureClassification{
		OperationID:       op.ID,
		FailureType:       failureType,
		Severity:          severity,
		Recoverable:       recoverable(failureType, severity, op),
		RecommendedAction: recommendAction(failureType, op.RetryCount),
		EstimatedRecovery: estimateRecovery(failureType, severity),
	}
}

// Classify is the package-level convenience using the default threshold.
func Classify(op model.SyncOperation, syncErr model.SyncError) model.FailureClassification {
	return New(DefaultFailureThreshold).Classify(op, syncErr)
}

// typeRule pairs a failure type with the keywords that select it.
// Rules are checked in order; the first match wins.
type typeRule struct {
	failureType model.FailureType
	keywords    []string
}

// typeRules is the fixed priority order for keyword matching.
var typeRules = []typeRule{
	{model.FailureNetwork, []string{"network", "connection", "conn", "dns", "refused", "unreachable"}},
	{model.FailureTimeout, []string{"timeout", "timed out", "deadline"}},
	{model.FailureAuth, []string{"auth", "unauthorized", "credential", "token", "401"}},
	{model.FailurePermission, []string{"permission", "forbidden", "denied", "403"}},
	{model.FailureCorruption, []string{"corrupt", "invalid data", "checksum", "malformed"}},
	{model.FailureSchema, []string{"schema", "column", "no such table", "migration"}},
	{model.FailureConflict, []string{"conflict", "concurrent", "version mismatch"}},
	{model.FailureResource, []string{"resource", "memory", "disk", "space", "quota", "exhaust"}},
}

// detectType matches the error's code and message (case-insensitive
// substring) against the rule ladder.
func detectType(syncErr model.SyncError) model.FailureType {
	haystack := strings.ToLower(syncErr.Code + " " + syncErr.Message)
	for _, rule := range typeRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(haystack, keyword) {
				return rule.failureType
			}
		}
	}
	return model.FailureUnknown
}

// baseSeverity is the per-type starting severity before escalation.
var baseSeverity = map[model.FailureType]model.FailureSeverity{
	model.FailureNetwork:    model.FailureLow,
	model.FailureTimeout:    model.FailureLow,
	model.FailureAuth:       model.FailureMedium,
	model.FailurePermission: model.FailureHigh,
	model.FailureCorruption: model.FailureHigh,
	model.FailureSchema:     model.FailureHigh,
	model.FailureConflict:   model.FailureMedium,
	model.FailureResource:   model.FailureMedium,
	model.FailureUnknown:    model.FailureMedium,
}

// recoverableTypes is the allow-list of failure types worth automated
// recovery when the budget and severity permit.
var recoverableTypes = map[model.FailureType]bool{
	model.FailureNetwork:  true,
	model.FailureTimeout:  true,
	model.FailureConflict: true,
	model.FailureResource: true,
}

func recoverable(failureType model.FailureType, severity model.FailureSeverity, op model.SyncOperation) bool {
	if severity == model.FailureCritical {
		return false
	}
	if op.MaxRetries > 0 && op.RetryCount >= op.MaxRetries {
		return false
	}
	return recoverableTypes[failureType]
}

// recommendAction follows the retry-count decision ladder:
// 0 retry, 1 backoff, 2-3 fallback, then the per-type terminal action.
func recommendAction(failureType model.FailureType, retryCount int) model.RecoveryAction {
	switch {
	case retryCount <= 0:
		return model.ActionRetry
	case retryCount == 1:
		return model.ActionBackoffRetry
	case retryCount <= 3:
		return model.ActionFallbackStrategy
	}

	switch failureType {
	case model.FailureCorruption, model.FailureSchema:
		return model.ActionRestoreFromBackup
	case model.FailureNetwork, model.FailureTimeout:
		return model.ActionResetAndResync
	default:
		return model.ActionManualIntervention
	}
}

// baseRecovery is the per-type estimate before severity scaling.
var baseRecovery = map[model.FailureType]time.Duration{
	model.FailureNetwork:    30 * time.Second,
	model.FailureTimeout:    15 * time.Second,
	model.FailureAuth:       time.Minute,
	model.FailurePermission: 5 * time.Minute,
	model.FailureCorruption: 30 * time.Minute,
	model.FailureSchema:     15 * time.Minute,
	model.FailureConflict:   2 * time.Minute,
	model.FailureResource:   5 * time.Minute,
	model.FailureUnknown:    10 * time.Minute,
}

// severityScale multiplies the base estimate: harder failures take longer.
var severityScale = map[model.FailureSeverity]float64{
	model.FailureLow:      0.5,
	model.FailureMedium:   1,
	model.FailureHigh:     2,
	model.FailureCritical: 5,
}

func estimateRecovery(failureType model.FailureType, severity model.FailureSeverity) time.Duration {
	return time.Duration(float64(baseRecovery[failureType]) * severityScale[severity])
}
