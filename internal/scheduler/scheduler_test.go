package scheduler

import (
	"testing"

	"ledbar-controller/internal/config"
	"ledbar-controller/internal/core"
)

func TestNewScheduler_SkipsBadSpecs(t *testing.T) {
	ch := make(core.CommandChannel, 4)
	s := NewScheduler(ch, []config.ScheduleEntry{
		{Spec: "0 23 * * *", Command: "9"},
		{Spec: "not a spec", Command: "1"},
		{Spec: "@every 1h", Command: "3"},
	})

	if got := len(s.GetAll()); got != 2 {
		t.Fatalf("expected 2 schedules, got %d", got)
	}
}

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(make(core.CommandChannel, 1), nil)

	id, err := s.Add("@hourly", "5")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if e := s.GetAll()[id]; e.Command != "5" || e.Spec != "@hourly" {
		t.Fatalf("stored entry %+v", e)
	}

	if _, err := s.Add("every tuesday", "9"); err == nil {
		t.Fatal("expected an error for an unparsable spec")
	}
	if len(s.GetAll()) != 1 {
		t.Fatal("a rejected spec was stored")
	}
}

func TestScheduler_ExecuteQueuesWithoutBlocking(t *testing.T) {
	ch := make(core.CommandChannel, 1)
	s := NewScheduler(ch, nil)

	s.execute("2")
	s.execute("9") // queue full: dropped, must not block

	cmd := <-ch
	if cmd.Token != "2" || cmd.Source != "cron" {
		t.Fatalf("unexpected command %+v", cmd)
	}
	if len(ch) != 0 {
		t.Fatal("overflow command was queued")
	}
}
