package storage

import (
	"context"
	"strings"
	"time"

	"badlionbot/internal/eventbus"
	logx "badlionbot/pkg/logx"
)

// RecordEvents drains reply and delivery events into st until ctx ends or events
// is closed. Write failures are logged and skipped.
func RecordEvents(ctx context.Context, st Store, events <-chan eventbus.Event, log logx.Logger) {
	write := func(ev eventbus.Event) {
		rec, ok := recordOf(ev)
		if !ok {
			return
		}
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := st.Append(wctx, rec); err != nil {
			log.Warn("audit write failed", logx.String("event_id", rec.EventID), logx.Err(err))
		}
	}
	for {
		select {
		case <-ctx.Done():
			// Flush what is already buffered.
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					write(ev)
				default:
					return
				}
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			write(ev)
		}
	}
}

func recordOf(ev eventbus.Event) (Record, bool) {
	r, ok := ev.Data.(eventbus.Reply)
	if !ok {
		return Record{}, false
	}
	if !strings.HasPrefix(ev.Type, "reply.") && !strings.HasPrefix(ev.Type, "delivery.") {
		return Record{}, false
	}
	return Record{
		At:        ev.Time,
		EventID:   r.EventID,
		Outcome:   ev.Type,
		Path:      r.Path,
		UserID:    r.UserID,
		Username:  r.Username,
		GuildID:   r.GuildID,
		ChannelID: r.ChannelID,
		Mode:      r.Mode,
		Arabic:    r.Arabic,
		Context:   r.Context,
		Error:     r.Error,
	}, true
}
