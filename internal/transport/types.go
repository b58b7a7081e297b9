// Package transport defines the boundary between the responder and the chat
// platform. Adapters push Updates onto a channel and expose the handful of
// send operations the responder needs.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrDeliveryForbidden is returned by SendDirect when the member does not
	// accept direct messages (DMs closed or the bot is blocked).
	ErrDeliveryForbidden = errors.New("direct delivery forbidden")
	// ErrSendRejected wraps any other platform-level send failure.
	ErrSendRejected = errors.New("send rejected")
)

type UpdateKind string

const (
	UpdateMessage    UpdateKind = "message"
	UpdateMemberJoin UpdateKind = "member_join"
)

// Update is one inbound platform event. Exactly one of Message and Member is
// set, matching Kind.
type Update struct {
	Kind    UpdateKind
	Message *Message
	Member  *Member
}

// User is a platform account.
type User struct {
	ID       string
	Username string
	Bot      bool
}

// Mention returns the platform mention markup for the user.
func (u User) Mention() string { return "<@" + u.ID + ">" }

// Member is a user in the context of one guild.
type Member struct {
	User
	GuildID     string
	DisplayName string
	Nick        string
}

// Channel is a guild text channel (or a DM channel when GuildID is empty).
type Channel struct {
	ID      string
	GuildID string
	Name    string
}

// Message is a received chat message.
type Message struct {
	ID      string
	Author  User
	Content string
	Channel Channel
}

// Adapter is implemented by platform transports.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// SendDirect delivers text privately; it returns an error wrapping
	// ErrDeliveryForbidden when the member does not accept DMs.
	SendDirect(ctx context.Context, to Member, text string) error
	// SendToChannel posts text in ch; failures wrap ErrSendRejected.
	SendToChannel(ctx context.Context, ch Channel, text string) error
	// ListTextChannels returns the guild's text channels in listing order.
	ListTextChannels(ctx context.Context, guildID string) ([]Channel, error)
	// CanSendIn reports whether the bot may post messages in ch.
	CanSendIn(ctx context.Context, ch Channel) bool
}
