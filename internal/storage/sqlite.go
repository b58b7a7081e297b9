package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "badlionbot/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS reply_audit (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	at         TEXT    NOT NULL,
	event_id   TEXT    NOT NULL,
	outcome    TEXT    NOT NULL,
	path       TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	username   TEXT,
	guild_id   TEXT,
	channel_id TEXT,
	mode       TEXT    NOT NULL,
	arabic     INTEGER NOT NULL DEFAULT 0,
	context    INTEGER NOT NULL DEFAULT 0,
	err        TEXT
);
CREATE INDEX IF NOT EXISTS reply_audit_user ON reply_audit(user_id);
`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func sqlitePath(path string) string {
	if filepath.Ext(path) == "" {
		return path + ".db"
	}
	return path
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage.path is required for the sqlite driver")
	}
	path := sqlitePath(cfg.Path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer keeps SQLite out of SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	log.Info("audit store opened", logx.String("driver", "sqlite"), logx.String("path", path))
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Append(ctx context.Context, r Record) error {
	if s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reply_audit(at, event_id, outcome, path, user_id, username, guild_id, channel_id, mode, arabic, context, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.EventID, r.Outcome, r.Path, r.UserID,
		nullStr(r.Username), nullStr(r.GuildID), nullStr(r.ChannelID), r.Mode,
		r.Arabic, r.Context, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
