package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"badlionbot/internal/responder/reply"
)

func envOf(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func newManager(t *testing.T, name, content string, env map[string]string) *ConfigManager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}
	m := NewConfigManager(path)
	m.SetEnv(envOf(env))
	return m
}

func TestMissingFileUsesDefaults(t *testing.T) {
	m := newManager(t, "config.yaml", "", map[string]string{EnvToken: "tok"})
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Discord.Token != "tok" {
		t.Fatalf("token = %q", cfg.Discord.Token)
	}
	if cfg.Mode() != reply.ModeAccountsAvailable {
		t.Fatalf("default mode = %v, want available", cfg.Mode())
	}
	if cfg.Responder.SpamLimit != 5 || cfg.Responder.QueueSize != DefaultQueueSize {
		t.Fatalf("responder defaults = %+v", cfg.Responder)
	}
	if !cfg.MembersIntent() || !cfg.Logging.Console || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if m.Get() != cfg {
		t.Fatalf("Load must commit the config")
	}
}

func TestMissingToken(t *testing.T) {
	m := newManager(t, "config.yaml", "", nil)
	_, err := m.Load()
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("err = %v, want ErrMissingToken", err)
	}
	if err.Error() != "missing DISCORD_TOKEN in environment or .env file" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestEmptyEnvSelectsMode(t *testing.T) {
	cases := []struct {
		raw  string
		want reply.Mode
	}{
		{"true", reply.ModeAccountsClaimed},
		{"1", reply.ModeAccountsClaimed},
		{"TRUE", reply.ModeAccountsClaimed},
		{"false", reply.ModeAccountsAvailable},
		{"0", reply.ModeAccountsAvailable},
		{"", reply.ModeAccountsAvailable},
	}
	for _, tc := range cases {
		m := newManager(t, "config.yaml", "", map[string]string{EnvToken: "t", EnvEmpty: tc.raw})
		cfg, err := m.Parse()
		if err != nil {
			t.Fatalf("EMPTY=%q: %v", tc.raw, err)
		}
		if cfg.Mode() != tc.want {
			t.Fatalf("EMPTY=%q: mode = %v, want %v", tc.raw, cfg.Mode(), tc.want)
		}
	}
}

func TestEmptyEnvInvalid(t *testing.T) {
	m := newManager(t, "config.yaml", "", map[string]string{EnvToken: "t", EnvEmpty: "maybe"})
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "EMPTY") {
		t.Fatalf("err = %v, want EMPTY error", err)
	}
}

func TestEmptyEnvOverridesFile(t *testing.T) {
	yml := "responder:\n  accounts_available: true\n"
	m := newManager(t, "config.yaml", yml, map[string]string{EnvToken: "t", EnvEmpty: "true"})
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Mode() != reply.ModeAccountsClaimed {
		t.Fatalf("mode = %v, want claimed", cfg.Mode())
	}
}

func TestYAMLFile(t *testing.T) {
	yml := `
discord:
  token: from-file
  intents_members: false
responder:
  accounts_available: false
  spam_limit: 3
  workers: 2
logging:
  level: debug
  console: false
status:
  schedule: "@hourly"
storage:
  driver: sqlite
`
	m := newManager(t, "config.yaml", yml, nil)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Discord.Token != "from-file" || cfg.MembersIntent() {
		t.Fatalf("discord = %+v", cfg.Discord)
	}
	if cfg.Mode() != reply.ModeAccountsClaimed || cfg.Responder.SpamLimit != 3 || cfg.Responder.Workers != 2 {
		t.Fatalf("responder = %+v", cfg.Responder)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Status.Schedule != "@hourly" {
		t.Fatalf("status = %+v", cfg.Status)
	}
	if cfg.Storage == nil || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
}

func TestEnvTokenWinsOverFile(t *testing.T) {
	m := newManager(t, "config.json", `{"discord":{"token":"file"}}`, map[string]string{EnvToken: "env"})
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Discord.Token != "env" {
		t.Fatalf("token = %q, want env", cfg.Discord.Token)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	m := newManager(t, "config.yaml", "responder:\n  spam_limt: 3\n", map[string]string{EnvToken: "t"})
	if _, err := m.Parse(); err == nil || !strings.Contains(err.Error(), "spam_limt") {
		t.Fatalf("err = %v, want unknown field error", err)
	}
}

func TestTrailingJSONRejected(t *testing.T) {
	m := newManager(t, "config.json", `{} {}`, map[string]string{EnvToken: "t"})
	if _, err := m.Parse(); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestDebugValidation(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "t"
	cfg.Debug.Enabled = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("loopback default: %v", err)
	}
	cfg.Debug.Addr = "0.0.0.0:6060"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("non-loopback without token must fail")
	}
	cfg.Debug.Token = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("with token: %v", err)
	}
	cfg.Debug.ReadTimeout = "soon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("bad duration must fail")
	}
}

func TestDebugTimeouts(t *testing.T) {
	r, w, i := DebugConfig{WriteTimeout: "30s"}.Timeouts()
	if r != 10*time.Second || w != 30*time.Second || i != 60*time.Second {
		t.Fatalf("timeouts = %v %v %v", r, w, i)
	}
}

func TestStorageDriverValidation(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "t"
	cfg.Storage = &StorageConfig{Driver: "postgres"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unknown driver must fail")
	}
}

func TestLoggingDiscordNeedsChannel(t *testing.T) {
	cfg := Defaults()
	cfg.Discord.Token = "t"
	cfg.Logging.Discord.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected channel_id error")
	}
}

func TestPathFromEnv(t *testing.T) {
	if got := PathFromEnv(envOf(nil)); got != DefaultPath {
		t.Fatalf("default path = %q", got)
	}
	if got := PathFromEnv(envOf(map[string]string{EnvConfig: "/etc/bot.json"})); got != "/etc/bot.json" {
		t.Fatalf("path = %q", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("BADLION_TEST_DOTENV=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BADLION_TEST_DOTENV", "")
	os.Unsetenv("BADLION_TEST_DOTENV")
	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("BADLION_TEST_DOTENV"); got != "yes" {
		t.Fatalf("env = %q", got)
	}
}

func TestReloadPublishesChanges(t *testing.T) {
	m := newManager(t, "config.yaml", "responder:\n  spam_limit: 3\n", map[string]string{EnvToken: "t"})
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	m.reload(context.Background())
	select {
	case <-sub:
		t.Fatalf("unchanged config must not be published")
	default:
	}

	if err := os.WriteFile(m.Path(), []byte("responder:\n  spam_limit: 4\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	select {
	case cfg := <-sub:
		if cfg.Responder.SpamLimit != 4 {
			t.Fatalf("published spam_limit = %d", cfg.Responder.SpamLimit)
		}
	default:
		t.Fatalf("expected a published config")
	}

	if err := os.WriteFile(m.Path(), []byte("responder: [oops\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if m.Get().Responder.SpamLimit != 4 {
		t.Fatalf("invalid reload must keep the previous config")
	}
}

func TestValidatorRejectsReload(t *testing.T) {
	m := newManager(t, "config.yaml", "", map[string]string{EnvToken: "t"})
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(context.Context, *Config) error { return errors.New("no") })
	if err := os.WriteFile(m.Path(), []byte("logging:\n  level: debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())
	if m.Get().Logging.Level != "info" {
		t.Fatalf("rejected config was committed")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	a := Defaults()
	a.Discord.Token = "secret-a"
	b := Defaults()
	b.Discord.Token = "secret-b"
	b.Logging.Level = "debug"
	b.Debug.Token = "debug-secret"
	b.Status.Schedule = "@daily"
	b.Responder.AccountsAvailable = boolPtr(false)

	ch := SummarizeConfigChange(a, b)
	want := []string{"debug", "discord", "logging", "responder", "status"}
	if strings.Join(ch.Sections, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", ch.Sections, want)
	}
	if strings.Join(ch.RestartRequired, ",") != "discord,responder" {
		t.Fatalf("restart required = %v", ch.RestartRequired)
	}
	if SummarizeConfigChange(a, a).Empty() != true {
		t.Fatalf("identical configs must produce an empty change")
	}
}
