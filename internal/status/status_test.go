package status

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"badlionbot/internal/ratelimit"
	"badlionbot/internal/router"
	logx "badlionbot/pkg/logx"
)

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"", "@hourly", "*/5 * * * *", "@every 1m"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Fatalf("ValidateSchedule(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"every hour", "* * *", "61 * * * *"} {
		if err := ValidateSchedule(bad); err == nil {
			t.Fatalf("ValidateSchedule(%q) should fail", bad)
		}
	}
}

func TestEmitLogsSnapshot(t *testing.T) {
	var buf bytes.Buffer
	r := New(logx.NewJSON(&buf, "info"), func() Report {
		return Report{
			Mode:    "accounts_claimed",
			Limiter: ratelimit.Stats{Limit: 5, Tracked: 3, Exhausted: 1},
			Router:  router.Stats{Sent: 7, Suppressed: 2},
		}
	})
	r.Emit()
	out := buf.String()
	for _, want := range []string{`"mode":"accounts_claimed"`, `"tracked_users":3`, `"replies_sent":7`, `"replies_suppressed":2`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log %q missing %s", out, want)
		}
	}
}

func TestEmitNotifiesLine(t *testing.T) {
	var lines []string
	r := New(logx.Nop(), func() Report {
		return Report{
			Mode:    "accounts_available",
			Limiter: ratelimit.Stats{Limit: 5, Tracked: 4, Exhausted: 1},
			Router:  router.Stats{Sent: 9, Suppressed: 3},
		}
	}, WithNotify(func(line string) { lines = append(lines, line) }))
	r.Emit()
	want := "accounts_available, 9 sent, 3 suppressed, 1/4 users at limit"
	if len(lines) != 1 || lines[0] != want {
		t.Fatalf("notify lines = %q, want [%q]", lines, want)
	}
}

func TestReconfigure(t *testing.T) {
	r := New(logx.Nop(), func() Report { return Report{} })
	if err := r.Reconfigure("bogus"); err == nil {
		t.Fatalf("invalid schedule accepted")
	}
	if err := r.Reconfigure("@hourly"); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if r.Schedule() != "@hourly" {
		t.Fatalf("schedule = %q", r.Schedule())
	}
	if err := r.Reconfigure(""); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if r.Schedule() != "" {
		t.Fatalf("schedule should be cleared")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Reconfigure("@daily"); err != nil {
		t.Fatal(err)
	}
	r.Stop(ctx)
	if r.Schedule() != "" {
		t.Fatalf("Stop should clear the schedule")
	}
}
