// Package status logs a periodic summary of the responder on a cron
// schedule.
package status

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"badlionbot/internal/ratelimit"
	"badlionbot/internal/router"
	logx "badlionbot/pkg/logx"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a cron spec; empty is valid and means disabled.
func ValidateSchedule(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("status.schedule %q: %w", spec, err)
	}
	return nil
}

// Report is one status snapshot.
type Report struct {
	Mode    string
	Uptime  time.Duration
	Limiter ratelimit.Stats
	Router  router.Stats
}

type Reporter struct {
	log      logx.Logger
	snapshot func() Report
	notify   func(line string)

	mu       sync.Mutex
	c        *cron.Cron
	schedule string
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithNotify also hands every report, as one short line, to fn. The app uses
// it to keep the systemd STATUS= line current.
func WithNotify(fn func(line string)) Option { return func(r *Reporter) { r.notify = fn } }

func New(log logx.Logger, snapshot func() Report, opts ...Option) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Reporter{log: log, snapshot: snapshot}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Line renders rep for a one-line status display.
func (rep Report) Line() string {
	return fmt.Sprintf("%s, %d sent, %d suppressed, %d/%d users at limit",
		rep.Mode, rep.Router.Sent, rep.Router.Suppressed, rep.Limiter.Exhausted, rep.Limiter.Tracked)
}

// Schedule returns the active cron spec, empty when stopped.
func (r *Reporter) Schedule() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedule
}

// Reconfigure replaces the schedule. An empty spec stops the reporter; an
// unchanged spec is a no-op.
func (r *Reporter) Reconfigure(spec string) error {
	spec = strings.TrimSpace(spec)
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if spec == r.schedule && (spec == "") == (r.c == nil) {
		return nil
	}
	if r.c != nil {
		r.c.Stop()
		r.c = nil
	}
	r.schedule = spec
	if spec == "" {
		r.log.Debug("status report disabled")
		return nil
	}
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{r.log})))
	if _, err := c.AddFunc(spec, r.Emit); err != nil {
		return err
	}
	c.Start()
	r.c = c
	r.log.Info("status report scheduled", logx.String("schedule", spec))
	return nil
}

// Emit logs one report immediately.
func (r *Reporter) Emit() {
	if r.snapshot == nil {
		return
	}
	rep := r.snapshot()
	r.log.Info("status",
		logx.String("mode", rep.Mode),
		logx.Duration("uptime", rep.Uptime.Truncate(time.Second)),
		logx.Int("spam_limit", rep.Limiter.Limit),
		logx.Int("tracked_users", rep.Limiter.Tracked),
		logx.Int("exhausted_users", rep.Limiter.Exhausted),
		logx.Uint64("updates", rep.Router.Updates),
		logx.Uint64("replies_sent", rep.Router.Sent),
		logx.Uint64("replies_failed", rep.Router.Failed),
		logx.Uint64("replies_suppressed", rep.Router.Suppressed),
		logx.Uint64("dm_private", rep.Router.Private),
		logx.Uint64("dm_fallback", rep.Router.Fallback),
		logx.Uint64("dm_no_channel", rep.Router.NoChannel),
	)
	if r.notify != nil {
		r.notify(rep.Line())
	}
}

// Stop halts the schedule and waits for a running report, bounded by ctx.
func (r *Reporter) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.schedule = ""
	r.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts logx to cron.Logger for the Recover wrapper.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
