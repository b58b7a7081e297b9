// Package router turns inbound platform updates into keyword replies.
//
// Member joins are answered through the delivery dispatcher without any rate
// limit. Channel messages are answered in place, at most ratelimit.Limit
// times per author for the life of the process.
package router

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"badlionbot/internal/delivery"
	"badlionbot/internal/eventbus"
	"badlionbot/internal/ratelimit"
	"badlionbot/internal/responder/match"
	"badlionbot/internal/responder/reply"
	"badlionbot/internal/transport"
	logx "badlionbot/pkg/logx"
)

type Options struct {
	Mode      reply.Mode
	Limiter   *ratelimit.Counter
	Workers   int // <= 0 means runtime.NumCPU(), at least 2
	QueueSize int
	Bus       eventbus.Bus
	Log       logx.Logger
}

// Stats are cumulative outcome counters.
type Stats struct {
	Updates    uint64
	Sent       uint64
	Failed     uint64
	Suppressed uint64
	Private    uint64
	Fallback   uint64
	NoChannel  uint64
	DMFailed   uint64
	Panics     uint64
}

type Router struct {
	tr       delivery.Sender
	dispatch *delivery.Dispatcher
	limiter  *ratelimit.Counter
	mode     reply.Mode
	bus      eventbus.Bus
	log      logx.Logger
	workers  int
	queue    int

	updates, sent, failed, suppressed atomic.Uint64
	private, fallback, none, dmFailed atomic.Uint64
	panics                            atomic.Uint64
}

func New(tr delivery.Sender, opts Options) *Router {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	lim := opts.Limiter
	if lim == nil {
		lim = ratelimit.New(ratelimit.DefaultLimit)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = max(runtime.NumCPU(), 2)
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 256
	}
	return &Router{
		tr:       tr,
		dispatch: delivery.New(tr, log.With(logx.String("comp", "delivery"))),
		limiter:  lim,
		mode:     opts.Mode,
		bus:      opts.Bus,
		log:      log,
		workers:  workers,
		queue:    queue,
	}
}

func (r *Router) Mode() reply.Mode { return r.mode }

func (r *Router) Stats() Stats {
	return Stats{
		Updates:    r.updates.Load(),
		Sent:       r.sent.Load(),
		Failed:     r.failed.Load(),
		Suppressed: r.suppressed.Load(),
		Private:    r.private.Load(),
		Fallback:   r.fallback.Load(),
		NoChannel:  r.none.Load(),
		DMFailed:   r.dmFailed.Load(),
		Panics:     r.panics.Load(),
	}
}

// Run consumes updates on a bounded worker pool until ctx ends or updates is
// closed. Queued updates are finished before Run returns.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) error {
	jobs := make(chan transport.Update, r.queue)
	var wg sync.WaitGroup
	wg.Add(r.workers)
	for i := 0; i < r.workers; i++ {
		go func() {
			defer wg.Done()
			for up := range jobs {
				r.safeHandle(ctx, i, up)
			}
		}()
	}
	r.log.Info("router started", logx.Int("workers", r.workers), logx.Int("queue_cap", r.queue), logx.String("mode", r.mode.String()))
	defer func() {
		close(jobs)
		wg.Wait()
		r.log.Info("router stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case jobs <- up:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (r *Router) safeHandle(ctx context.Context, worker int, up transport.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.panics.Add(1)
			r.log.Error("panic in router worker", logx.Int("worker", worker), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
		}
	}()
	r.Handle(ctx, up)
}

// Handle processes one update synchronously.
func (r *Router) Handle(ctx context.Context, up transport.Update) {
	id := uuid.NewString()
	r.updates.Add(1)
	r.publish(eventbus.TypeUpdateReceived, eventbus.Update{EventID: id, Kind: string(up.Kind)})

	switch up.Kind {
	case transport.UpdateMemberJoin:
		if up.Member != nil {
			r.onMemberJoin(ctx, id, *up.Member)
		}
	case transport.UpdateMessage:
		if up.Message != nil {
			r.onMessage(ctx, id, *up.Message)
		}
	}
}

// JoinText is the text a new member is matched on: the non-empty username,
// display name and nickname joined by single spaces.
func JoinText(m transport.Member) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{m.Username, m.DisplayName, m.Nick} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func (r *Router) onMemberJoin(ctx context.Context, id string, m transport.Member) {
	res := match.Classify(JoinText(m))
	text, ok := reply.SelectResult(res, r.mode)
	if !ok {
		return
	}
	log := r.log.With(logx.String("event_id", id), logx.String("path", "member_join"))
	log.Info("member name matched keyword", logx.String("user", m.Username), logx.String("user_id", m.ID))

	out := r.dispatch.Deliver(ctx, m, text)
	ev := r.event(id, "member_join", m.User, res)
	ev.GuildID = m.GuildID
	switch out.Kind {
	case delivery.DeliveredPrivately:
		r.private.Add(1)
		r.publish(eventbus.TypeDeliveryPrivate, ev)
	case delivery.DeliveredFallback:
		r.fallback.Add(1)
		ev.ChannelID, ev.Channel = out.Channel.ID, out.Channel.Name
		r.publish(eventbus.TypeDeliveryFallback, ev)
	case delivery.NoChannelAvailable:
		r.none.Add(1)
		r.publish(eventbus.TypeDeliveryNone, ev)
	case delivery.DeliveryFailed:
		r.dmFailed.Add(1)
		if out.Err != nil {
			ev.Error = out.Err.Error()
		}
		r.publish(eventbus.TypeDeliveryFailed, ev)
	}
}

func (r *Router) onMessage(ctx context.Context, id string, msg transport.Message) {
	if msg.Author.Bot {
		return
	}
	res := match.Classify(msg.Content)
	text, ok := reply.SelectResult(res, r.mode)
	if !ok {
		return
	}
	log := r.log.With(
		logx.String("event_id", id),
		logx.String("path", "message"),
		logx.String("user", msg.Author.Username),
		logx.String("user_id", msg.Author.ID),
		logx.String("channel_id", msg.Channel.ID),
	)
	ev := r.event(id, "message", msg.Author, res)
	ev.GuildID, ev.ChannelID, ev.Channel = msg.Channel.GuildID, msg.Channel.ID, msg.Channel.Name

	if !r.limiter.TryAcquire(msg.Author.ID) {
		r.suppressed.Add(1)
		log.Info("reply suppressed; user reached the trigger limit", logx.Int("limit", r.limiter.Limit()))
		r.publish(eventbus.TypeReplySuppressed, ev)
		return
	}

	if err := r.tr.SendToChannel(ctx, msg.Channel, delivery.FormatMention(msg.Author.Mention(), text)); err != nil {
		r.failed.Add(1)
		log.Warn("failed to send reply", logx.Err(err))
		ev.Error = err.Error()
		r.publish(eventbus.TypeReplyFailed, ev)
		return
	}
	r.sent.Add(1)
	log.Info("sent keyword reply", logx.Int("count", r.limiter.Count(msg.Author.ID)))
	r.publish(eventbus.TypeReplySent, ev)
}

func (r *Router) event(id, path string, u transport.User, res match.Result) eventbus.Reply {
	return eventbus.Reply{
		EventID:  id,
		Path:     path,
		UserID:   u.ID,
		Username: u.Username,
		Mode:     r.mode.String(),
		Arabic:   res.IsArabic,
		Context:  res.HasContext,
	}
}

func (r *Router) publish(typ string, data any) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (s Stats) String() string {
	return fmt.Sprintf("sent=%d failed=%d suppressed=%d private=%d fallback=%d no_channel=%d", s.Sent, s.Failed, s.Suppressed, s.Private, s.Fallback, s.NoChannel)
}
