package application

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
)

func TestProgressMeterLogsWholePercentIncrements(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	meter := newProgressMeter("run-1", 4, 2, clock, log.New(&buf, "", 0))

	for step := 1; step <= 4; step++ {
		clock.Add(time.Second)
		meter.Observe(step)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 progress lines, got %d: %q", len(lines), buf.String())
	}
	for i, percent := range []string{"25%", "50%", "75%", "100%"} {
		if !strings.Contains(lines[i], percent) {
			t.Fatalf("line %d: expected %s, got %q", i, percent, lines[i])
		}
	}
	// One step for two scenarios in one second.
	if !strings.Contains(lines[0], "2 scenario-steps/s") {
		t.Fatalf("expected throughput in %q", lines[0])
	}
}

func TestProgressMeterSkipsRepeatedPercent(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	meter := newProgressMeter("run-1", 200, 1, clock, log.New(&buf, "", 0))

	clock.Add(time.Second)
	meter.Observe(1)
	if buf.Len() != 0 {
		t.Fatalf("expected no output below one percent, got %q", buf.String())
	}

	clock.Add(time.Second)
	meter.Observe(2)
	clock.Add(time.Second)
	meter.Observe(3)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected a single 1%% line, got %q", buf.String())
	}
}

func TestProgressMeterWithoutTotalIsSilent(t *testing.T) {
	var buf bytes.Buffer
	clock := &fakeClock{now: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	meter := newProgressMeter("run-1", 0, 1, clock, log.New(&buf, "", 0))
	meter.Observe(10)
	if buf.Len() != 0 {
		t.Fatalf("expected silence without total steps, got %q", buf.String())
	}
}
