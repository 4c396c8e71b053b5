package model

import (
	"testing"
	"time"
)

func TestParseSeverity_RoundTrip(t *testing.T) {
	for _, s := range []Severity{SeverityDebug, SeverityInfo, SeverityWarning, SeverityError, SeverityCritical} {
		parsed, err := ParseSeverity(s.String())
		if err != nil {
			t.Fatalf("ParseSeverity(%q) failed: %v", s.String(), err)
		}
		if parsed != s {
			t.Errorf("ParseSeverity(%q) = %v, want %v", s.String(), parsed, s)
		}
	}
}

func TestParseSeverity_Unknown(t *testing.T) {
	if _, err := ParseSeverity("fatal"); err == nil {
		t.Error("ParseSeverity(\"fatal\") succeeded, want error")
	}
}

func TestNewEventID_TimeSortable(t *testing.T) {
	earlier := NewEventID(time.UnixMilli(1700000000000))
	later := NewEventID(time.UnixMilli(1700000001000))
	if !(earlier < later) {
		t.Errorf("IDs not time-sortable: %q >= %q", earlier, later)
	}
}

func TestNewEventID_Unique(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewEventID(now)
		if seen[id] {
			t.Fatalf("duplicate ID %q", id)
		}
		seen[id] = true
	}
}

func TestChangeEvent_Validate(t *testing.T) {
	valid := ChangeEvent{
		ID:        NewEventID(time.Now()),
		Type:      EventFileChange,
		Severity:  SeverityInfo,
		Source:    "test",
		Timestamp: time.Now(),
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on valid event failed: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*ChangeEvent)
	}{
		{"empty id", func(e *ChangeEvent) { e.ID = "" }},
		{"unknown type", func(e *ChangeEvent) { e.Type = "mystery" }},
		{"zero timestamp", func(e *ChangeEvent) { e.Timestamp = time.Time{} }},
		{"empty source", func(e *ChangeEvent) { e.Source = "" }},
		{"severity out of range", func(e *ChangeEvent) { e.Severity = 99 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := valid
			tc.mutate(&e)
			if err := e.Validate(); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}

func TestDependsOn(t *testing.T) {
	e := ChangeEvent{Metadata: map[string]string{MetadataDependsOn: "evt-a,evt-b"}}
	deps := e.DependsOn()
	if len(deps) != 2 || deps[0] != "evt-a" || deps[1] != "evt-b" {
		t.Errorf("DependsOn() = %v, want [evt-a evt-b]", deps)
	}

	none := ChangeEvent{}
	if got := none.DependsOn(); got != nil {
		t.Errorf("DependsOn() on empty metadata = %v, want nil", got)
	}
}

func TestFailureSeverity_Escalate(t *testing.T) {
	if got := FailureLow.Escalate(); got != FailureMedium {
		t.Errorf("Escalate(low) = %v, want medium", got)
	}
	if got := FailureCritical.Escalate(); got != FailureCritical {
		t.Errorf("Escalate(critical) = %v, want critical (saturating)", got)
	}
}

func TestEventFilter_Validate(t *testing.T) {
	good := EventFilter{Types: []EventType{EventDBChange}, Limit: 10}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() on valid filter failed: %v", err)
	}

	since := time.Now()
	until := since.Add(-time.Hour)
	bad := []EventFilter{
		{Types: []EventType{"bogus"}},
		{Offset: -1},
		{Limit: -5},
		{Since: &since, Until: &until},
		{Sort: "sideways"},
	}
	for i, f := range bad {
		if err := f.Validate(); err == nil {
			t.Errorf("filter %d: Validate() succeeded, want error", i)
		}
	}
}

func TestReplayOptions_Validate(t *testing.T) {
	good := ReplayOptions{Mode: ModeSafe, Strategy: StrategySequential}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate() on valid options failed: %v", err)
	}

	bad := []ReplayOptions{
		{Strategy: StrategySequential},                              // missing mode
		{Mode: ModeSafe},                                            // missing strategy
		{Mode: "warp", Strategy: StrategySequential},                // unknown mode
		{Mode: ModeSafe, Strategy: "psychic"},                       // unknown strategy
		{Mode: ModeSafe, Strategy: StrategySequential, MaxConcurrency: -1},
	}
	for i, o := range bad {
		if err := o.Validate(); err == nil {
			t.Errorf("options %d: Validate() succeeded, want error", i)
		}
	}
}

func TestSessionStatus_Terminal(t *testing.T) {
	for _, s := range []SessionStatus{SessionCompleted, SessionFailed, SessionCancelled} {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []SessionStatus{SessionPending, SessionRunning} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}

func TestRollbackPoint_Expired(t *testing.T) {
	now := time.Now()
	p := RollbackPoint{ExpiresAt: now.Add(time.Minute)}
	if p.Expired(now) {
		t.Error("Expired() = true before expiry")
	}
	if !p.Expired(now.Add(2 * time.Minute)) {
		t.Error("Expired() = false after expiry")
	}
	if !p.Expired(p.ExpiresAt) {
		t.Error("Expired() = false at exact expiry instant")
	}
}
