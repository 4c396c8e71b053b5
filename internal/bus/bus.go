// Package bus fans recovery lifecycle notifications out to observers.
//
// Each observer gets its own bounded queue drained by its own goroutine,
// so a slow or panicking observer can never block the recovery manager's
// critical path. When a queue is full the notification is dropped and
// counted, not waited on.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// Observer receives recovery lifecycle callbacks. Implementations run on
// the bus's dispatch goroutine for that observer; they may block or panic
// without affecting publishers or other observers.
type Observer interface {
	OnFailureDetected(classification model.FailureClassification)
	OnRecoveryStarted(operationID string, classification model.FailureClassification)
	OnRecoveryCompleted(operationID string, result model.RecoveryResult)
	OnRollbackPointCreated(point model.RollbackPoint)
	OnBackupCreated(info model.BackupInfo)
}

// DefaultQueueSize bounds each observer's notification queue.
const DefaultQueueSize = 64

type noticeKind int

const (
	noticeFailure noticeKind = iota
	noticeRecoveryStarted
	noticeRecoveryCompleted
	noticeRollbackPoint
	noticeBackup
)

type notice struct {
	kind           noticeKind
	operationID    string
	classification model.FailureClassification
	result         model.RecoveryResult
	point          model.RollbackPoint
	backup         model.BackupInfo
}

type subscriber struct {
	name     string
	observer Observer
	queue    chan notice
}

// Bus is the fan-out hub. The zero value is not usable; call New.
type Bus struct {
	logger    *zap.Logger
	queueSize int

	mu      sync.Mutex
	subs    []*subscriber
	closed  bool
	dropped int64

	wg sync.WaitGroup
}

// New builds a bus with the default per-observer queue size.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger, queueSize: DefaultQueueSize}
}

// Subscribe registers an observer under a name used in drop logs and
// starts its dispatch goroutine.
func (b *Bus) Subscribe(name string, o Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	sub := &subscriber{name: name, observer: o, queue: make(chan notice, b.queueSize)}
	b.subs = append(b.subs, sub)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for n := range sub.queue {
			b.dispatch(sub, n)
		}
	}()
}

// Close stops dispatch after draining queued notifications. Publishing
// after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, sub := range b.subs {
		close(sub.queue)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// Dropped reports how many notifications were discarded on full queues.
func (b *Bus) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// FailureDetected publishes a classification to all observers.
func (b *Bus) FailureDetected(classification model.FailureClassification) {
	b.publish(notice{kind: noticeFailure, classification: classification})
}

// RecoveryStarted publishes the start of a recovery attempt.
func (b *Bus) RecoveryStarted(operationID string, classification model.FailureClassification) {
	b.publish(notice{kind: noticeRecoveryStarted, operationID: operationID, classification: classification})
}

// RecoveryCompleted publishes a finished recovery attempt.
func (b *Bus) RecoveryCompleted(operationID string, result model.RecoveryResult) {
	b.publish(notice{kind: noticeRecoveryCompleted, operationID: operationID, result: result})
}

// RollbackPointCreated publishes a new rollback point.
func (b *Bus) RollbackPointCreated(point model.RollbackPoint) {
	b.publish(notice{kind: noticeRollbackPoint, point: point})
}

// BackupCreated publishes a new backup.
func (b *Bus) BackupCreated(info model.BackupInfo) {
	b.publish(notice{kind: noticeBackup, backup: info})
}

func (b *Bus) publish(n notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.queue <- n:
		default:
			b.dropped++
			b.logger.Warn("observer queue full, notification dropped",
				zap.String("observer", sub.name))
		}
	}
}

// dispatch invokes one callback under a recover guard.
func (b *Bus) dispatch(sub *subscriber, n notice) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("observer panicked",
				zap.String("observer", sub.name),
				zap.Any("panic", r))
		}
	}()

	switch n.kind {
	case noticeFailure:
		sub.observer.OnFailureDetected(n.classification)
	case noticeRecoveryStarted:
		sub.observer.OnRecoveryStarted(n.operationID, n.classification)
	case noticeRecoveryCompleted:
		sub.observer.OnRecoveryCompleted(n.operationID, n.result)
	case noticeRollbackPoint:
		sub.observer.OnRollbackPointCreated(n.point)
	case noticeBackup:
		sub.observer.OnBackupCreated(n.backup)
	}
}
