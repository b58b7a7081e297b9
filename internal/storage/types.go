package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config selects a backend. Driver "file" appends JSON lines, "sqlite"
// writes to a SQLite database; empty or "none" disables storage.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Record is one audited reply outcome.
type Record struct {
	At        time.Time `json:"at"`
	EventID   string    `json:"event_id"`
	Outcome   string    `json:"outcome"`
	Path      string    `json:"path"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	GuildID   string    `json:"guild_id,omitempty"`
	ChannelID string    `json:"channel_id,omitempty"`
	Mode      string    `json:"mode"`
	Arabic    bool      `json:"arabic"`
	Context   bool      `json:"context"`
	Error     string    `json:"error,omitempty"`
}

type Store interface {
	Append(ctx context.Context, r Record) error
	Close() error
}
