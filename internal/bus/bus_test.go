package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/fenwick-labs/tidelog/internal/model"
)

// recordingObserver collects every callback it receives.
type recordingObserver struct {
	mu         sync.Mutex
	failures   []model.FailureClassification
	started    []string
	completed  []string
	points     []string
	backups    []string
	blockUntil chan struct{}
	panicOnce  bool
}

func (o *recordingObserver) OnFailureDetected(c model.FailureClassification) {
	if o.blockUntil != nil {
		<-o.blockUntil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.panicOnce {
		o.panicOnce = false
		panic("observer bug")
	}
	o.failures = append(o.failures, c)
}

func (o *recordingObserver) OnRecoveryStarted(id string, c model.FailureClassification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, id)
}

func (o *recordingObserver) OnRecoveryCompleted(id string, r model.RecoveryResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, id)
}

func (o *recordingObserver) OnRollbackPointCreated(p model.RollbackPoint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.points = append(o.points, p.ID)
}

func (o *recordingObserver) OnBackupCreated(b model.BackupInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backups = append(o.backups, b.ID)
}

func (o *recordingObserver) counts() (int, int, int, int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.failures), len(o.started), len(o.completed), len(o.points), len(o.backups)
}

func TestBus_DeliversAllKinds(t *testing.T) {
	b := New(nil)
	obs := &recordingObserver{}
	b.Subscribe("test", obs)

	b.FailureDetected(model.FailureClassification{OperationID: "op-1"})
	b.RecoveryStarted("op-1", model.FailureClassification{})
	b.RecoveryCompleted("op-1", model.RecoveryResult{Success: true})
	b.RollbackPointCreated(model.RollbackPoint{ID: "rp-1"})
	b.BackupCreated(model.BackupInfo{ID: "bk-1"})
	b.Close()

	failures, started, completed, points, backups := obs.counts()
	if failures != 1 || started != 1 || completed != 1 || points != 1 || backups != 1 {
		t.Fatalf("counts = %d/%d/%d/%d/%d, want 1 each",
			failures, started, completed, points, backups)
	}
}

func TestBus_SlowObserverNeverBlocksPublisher(t *testing.T) {
	b := New(nil)
	b.queueSize = 2
	slow := &recordingObserver{blockUntil: make(chan struct{})}
	b.Subscribe("slow", slow)

	done := make(chan struct{})
	go func() {
		// Queue size 2 plus one in-flight: further publishes must drop,
		// not wait.
		for i := 0; i < 10; i++ {
			b.FailureDetected(model.FailureClassification{OperationID: "op-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow observer")
	}
	if b.Dropped() == 0 {
		t.Fatal("no notifications dropped despite full queue")
	}

	close(slow.blockUntil)
	b.Close()
}

func TestBus_PanickingObserverIsContained(t *testing.T) {
	b := New(nil)
	obs := &recordingObserver{panicOnce: true}
	b.Subscribe("flaky", obs)

	b.FailureDetected(model.FailureClassification{OperationID: "op-1"})
	b.FailureDetected(model.FailureClassification{OperationID: "op-2"})
	b.Close()

	failures, _, _, _, _ := obs.counts()
	if failures != 1 {
		t.Fatalf("failures delivered after panic = %d, want 1", failures)
	}
}

func TestBus_PublishAfterCloseIsNoop(t *testing.T) {
	b := New(nil)
	obs := &recordingObserver{}
	b.Subscribe("test", obs)
	b.Close()

	b.FailureDetected(model.FailureClassification{OperationID: "op-1"})

	failures, _, _, _, _ := obs.counts()
	if failures != 0 {
		t.Fatalf("failures after close = %d, want 0", failures)
	}
}
