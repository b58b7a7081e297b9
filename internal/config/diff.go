package config

import (
	"reflect"
	"sort"
	"strings"

	logx "badlionbot/pkg/logx"
)

// Change summarises a config reload for logging. Attrs never carry secrets.
type Change struct {
	// Sections lists every changed top-level section, sorted.
	Sections []string
	// RestartRequired lists changed sections that only take effect on the
	// next start (discord, responder, storage).
	RestartRequired []string
	Attrs           []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	// Token values are compared but only presence is logged.
	if oldCfg.Discord.Token != newCfg.Discord.Token || oldCfg.MembersIntent() != newCfg.MembersIntent() {
		mark("discord", true,
			logx.Bool("discord.token_changed", oldCfg.Discord.Token != newCfg.Discord.Token),
			logx.Bool("discord.intents_members", newCfg.MembersIntent()),
		)
	}

	if oldCfg.Mode() != newCfg.Mode() ||
		oldCfg.Responder.SpamLimit != newCfg.Responder.SpamLimit ||
		oldCfg.Responder.Workers != newCfg.Responder.Workers ||
		oldCfg.Responder.QueueSize != newCfg.Responder.QueueSize {
		mark("responder", true,
			logx.String("responder.mode", newCfg.Mode().String()),
			logx.Int("responder.spam_limit", newCfg.Responder.SpamLimit),
			logx.Int("responder.workers", newCfg.Responder.Workers),
			logx.Int("responder.queue_size", newCfg.Responder.QueueSize),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.discord_enabled", newCfg.Logging.Discord.Enabled),
		)
	}

	od, nd := oldCfg.Debug, newCfg.Debug
	tokenChanged := od.Token != nd.Token
	od.Token, nd.Token = "", ""
	if tokenChanged || od != nd {
		mark("debug", false,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
			logx.Bool("debug.allow_insecure", nd.AllowInsecure),
		)
	}

	if strings.TrimSpace(oldCfg.Status.Schedule) != strings.TrimSpace(newCfg.Status.Schedule) {
		mark("status", false, logx.String("status.schedule", strings.TrimSpace(newCfg.Status.Schedule)))
	}

	var oldStore, newStore StorageConfig
	if oldCfg.Storage != nil {
		oldStore = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		newStore = *newCfg.Storage
	}
	if oldStore != newStore {
		mark("storage", true,
			logx.String("storage.driver", strings.TrimSpace(newStore.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newStore.Path) != ""),
		)
	}

	sort.Strings(ch.Sections)
	sort.Strings(ch.RestartRequired)
	return ch
}
