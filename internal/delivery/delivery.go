// Package delivery sends a reply to a member privately, falling back to the
// first guild text channel the bot may post in when DMs are closed.
package delivery

import (
	"context"
	"errors"

	"badlionbot/internal/transport"
	logx "badlionbot/pkg/logx"
)

// Kind classifies how a delivery ended.
type Kind int

const (
	DeliveredPrivately Kind = iota + 1
	DeliveredFallback
	NoChannelAvailable
	DeliveryFailed
)

func (k Kind) String() string {
	switch k {
	case DeliveredPrivately:
		return "private"
	case DeliveredFallback:
		return "fallback"
	case NoChannelAvailable:
		return "no_channel"
	case DeliveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one Deliver call. It is only used for logging
// and events; callers never branch on it for business logic.
type Outcome struct {
	Kind    Kind
	Channel transport.Channel // set for DeliveredFallback
	Err     error             // set for DeliveryFailed
}

// Sender is the subset of transport.Adapter the dispatcher uses.
type Sender interface {
	SendDirect(ctx context.Context, to transport.Member, text string) error
	SendToChannel(ctx context.Context, ch transport.Channel, text string) error
	ListTextChannels(ctx context.Context, guildID string) ([]transport.Channel, error)
	CanSendIn(ctx context.Context, ch transport.Channel) bool
}

// FormatMention prefixes text with the mention markup.
func FormatMention(mention, text string) string {
	return mention + " — " + text
}

type Dispatcher struct {
	tr  Sender
	log logx.Logger
}

func New(tr Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{tr: tr, log: log}
}

// Deliver sends text to member. It never returns an error: every failure
// ends in an Outcome and a log line.
func (d *Dispatcher) Deliver(ctx context.Context, member transport.Member, text string) Outcome {
	msg := FormatMention(member.Mention(), text)
	log := d.log.With(logx.String("user", member.Username), logx.String("user_id", member.ID), logx.String("guild_id", member.GuildID))

	err := d.tr.SendDirect(ctx, member, msg)
	if err == nil {
		log.Info("sent direct message")
		return Outcome{Kind: DeliveredPrivately}
	}
	if !errors.Is(err, transport.ErrDeliveryForbidden) {
		log.Warn("direct message failed", logx.Err(err))
		return Outcome{Kind: DeliveryFailed, Err: err}
	}

	log.Debug("direct messages closed; trying guild channels")
	channels, err := d.tr.ListTextChannels(ctx, member.GuildID)
	if err != nil {
		log.Error("no accessible channel found for fallback message", logx.Err(err))
		return Outcome{Kind: NoChannelAvailable}
	}
	for _, ch := range channels {
		if !d.tr.CanSendIn(ctx, ch) {
			continue
		}
		if err := d.tr.SendToChannel(ctx, ch, msg); err != nil {
			log.Warn("fallback channel send failed", logx.String("channel", ch.Name), logx.Err(err))
			continue
		}
		log.Info("sent fallback message", logx.String("channel", ch.Name), logx.String("channel_id", ch.ID))
		return Outcome{Kind: DeliveredFallback, Channel: ch}
	}

	log.Error("no accessible channel found for fallback message", logx.Int("channels", len(channels)))
	return Outcome{Kind: NoChannelAvailable}
}
