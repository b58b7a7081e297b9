package eventbus

// Event types published by the router.
const (
	TypeUpdateReceived = "update.received"

	TypeReplySent       = "reply.sent"
	TypeReplyFailed     = "reply.failed"
	TypeReplySuppressed = "reply.suppressed"

	TypeDeliveryPrivate  = "delivery.private"
	TypeDeliveryFallback = "delivery.fallback"
	TypeDeliveryNone     = "delivery.none"
	TypeDeliveryFailed   = "delivery.failed"
)

// Reply is the payload of every reply.* and delivery.* event.
type Reply struct {
	EventID   string // correlation id of the triggering update
	Path      string // "message" or "member_join"
	UserID    string
	Username  string
	GuildID   string
	ChannelID string
	Channel   string // channel name, when known
	Mode      string
	Arabic    bool
	Context   bool
	Error     string
}

// Update is the payload of TypeUpdateReceived.
type Update struct {
	EventID string
	Kind    string
}
