// Package discord implements transport.Adapter on the Discord gateway and
// REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	rtsup "badlionbot/internal/runtime/supervisor"
	kit "badlionbot/internal/transport"
	logx "badlionbot/pkg/logx"
)

type Config struct {
	Token string
	// MembersIntent requests the privileged guild members intent so member
	// join events are delivered.
	MembersIntent bool
}

type Adapter struct {
	cfg Config
	log logx.Logger
	dg  *discordgo.Session

	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// dropped counts updates lost because the router queue was full; it is
	// reported periodically instead of per update.
	dropped atomic.Uint64

	selfMu sync.RWMutex
	self   kit.User
}

var _ kit.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("discord token is empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	dg, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	dg.Identify.Intents = Intents(cfg.MembersIntent)
	dg.StateEnabled = true

	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, dg: dg}
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Intents returns the gateway intents the responder needs.
func Intents(members bool) discordgo.Intent {
	in := discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	if members {
		in |= discordgo.IntentsGuildMembers
	}
	return in
}

// Self returns the bot account once the gateway reported ready.
func (a *Adapter) Self() kit.User {
	a.selfMu.RLock()
	defer a.selfMu.RUnlock()
	return a.self
}

// Supervisor returns the adapter's internal supervisor, nil when stopped.
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	a.dg.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		if r.User == nil {
			return
		}
		a.selfMu.Lock()
		a.self = kit.User{ID: r.User.ID, Username: r.User.Username, Bot: true}
		a.selfMu.Unlock()
		a.log.Info(fmt.Sprintf("logged in as %s (%s)", r.User.Username, r.User.ID), logx.Int("guilds", len(r.Guilds)))
	})

	a.dg.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil || m.Author == nil {
			return
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: convertMessage(s.State, m.Message)})
	})

	a.dg.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.Member == nil || m.Member.User == nil {
			return
		}
		mem := convertMember(m.Member)
		a.sendUpdate(kit.Update{Kind: kit.UpdateMemberJoin, Member: &mem})
	})
}

func convertMessage(st *discordgo.State, m *discordgo.Message) *kit.Message {
	ch := kit.Channel{ID: m.ChannelID, GuildID: m.GuildID}
	if st != nil {
		if c, err := st.Channel(m.ChannelID); err == nil && c != nil {
			ch.Name = c.Name
		}
	}
	return &kit.Message{
		ID:      m.ID,
		Author:  convertUser(m.Author),
		Content: m.Content,
		Channel: ch,
	}
}

func convertUser(u *discordgo.User) kit.User {
	if u == nil {
		return kit.User{}
	}
	return kit.User{ID: u.ID, Username: u.Username, Bot: u.Bot}
}

// convertMember keeps the three names a join is matched on. DisplayName is
// the account-wide global name; Nick is the guild nickname.
func convertMember(m *discordgo.Member) kit.Member {
	out := kit.Member{User: convertUser(m.User), GuildID: m.GuildID, Nick: m.Nick}
	if m.User != nil {
		out.DisplayName = m.User.GlobalName
	}
	return out
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.dropped.Add(1)
	}
}

// Start opens the gateway session. Handlers push onto out without blocking.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	if err := a.dg.Open(); err != nil {
		a.runMu.Unlock()
		return fmt.Errorf("discord gateway: %w", err)
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "discord.adapter"))))
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		t := time.NewTicker(5 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				a.reportDropped(cap(out))
				return
			case <-t.C:
				a.reportDropped(cap(out))
			}
		}
	})
	return nil
}

func (a *Adapter) reportDropped(capacity int) {
	if n := a.dropped.Swap(0); n > 0 {
		a.log.Warn("incoming updates dropped (queue full)", logx.Uint64("count", n), logx.Int("queue_cap", capacity))
	}
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	a.log.Info("closing discord session")
	err := a.dg.Close()
	if sup != nil {
		if werr := sup.Stop(ctx); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (a *Adapter) SendDirect(ctx context.Context, to kit.Member, text string) error {
	ch, err := a.dg.UserChannelCreate(to.ID, discordgo.WithContext(ctx))
	if err != nil {
		return classifyDirectError(err)
	}
	if _, err := a.dg.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return classifyDirectError(err)
	}
	return nil
}

func (a *Adapter) SendToChannel(ctx context.Context, ch kit.Channel, text string) error {
	if _, err := a.dg.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %w", kit.ErrSendRejected, err)
	}
	return nil
}

// ListTextChannels prefers the state cache and falls back to REST.
func (a *Adapter) ListTextChannels(ctx context.Context, guildID string) ([]kit.Channel, error) {
	var channels []*discordgo.Channel
	if g, err := a.dg.State.Guild(guildID); err == nil && g != nil && len(g.Channels) > 0 {
		channels = g.Channels
	} else {
		channels, err = a.dg.GuildChannels(guildID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("list channels of guild %s: %w", guildID, err)
		}
	}
	return textChannels(channels), nil
}

// CanSendIn checks the bot's effective send permission in ch.
func (a *Adapter) CanSendIn(ctx context.Context, ch kit.Channel) bool {
	self := a.Self().ID
	if self == "" && a.dg.State != nil && a.dg.State.User != nil {
		self = a.dg.State.User.ID
	}
	if self == "" {
		return false
	}
	perms, err := a.dg.State.UserChannelPermissions(self, ch.ID)
	if err != nil {
		perms, err = a.dg.UserChannelPermissions(self, ch.ID, discordgo.WithContext(ctx))
		if err != nil {
			a.log.Debug("permission lookup failed", logx.String("channel_id", ch.ID), logx.Err(err))
			return false
		}
	}
	return canSend(perms)
}

// canSend needs view as well as send: Discord hides channels the bot cannot
// view, and a send there fails.
func canSend(perms int64) bool {
	if perms&discordgo.PermissionAdministrator != 0 {
		return true
	}
	return perms&discordgo.PermissionViewChannel != 0 && perms&discordgo.PermissionSendMessages != 0
}

// textChannels keeps guild text channels in the guild's listing order.
func textChannels(in []*discordgo.Channel) []kit.Channel {
	sorted := make([]*discordgo.Channel, 0, len(in))
	for _, c := range in {
		if c != nil && c.Type == discordgo.ChannelTypeGuildText {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	out := make([]kit.Channel, len(sorted))
	for i, c := range sorted {
		out[i] = kit.Channel{ID: c.ID, GuildID: c.GuildID, Name: c.Name}
	}
	return out
}

// classifyDirectError maps Discord's "DMs closed" answers onto
// kit.ErrDeliveryForbidden; anything else wraps kit.ErrSendRejected.
func classifyDirectError(err error) error {
	var rest *discordgo.RESTError
	if errors.As(err, &rest) {
		if rest.Message != nil && rest.Message.Code == discordgo.ErrCodeCannotSendMessagesToThisUser {
			return fmt.Errorf("%w: %w", kit.ErrDeliveryForbidden, err)
		}
		if rest.Response != nil && rest.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %w", kit.ErrDeliveryForbidden, err)
		}
	}
	return fmt.Errorf("%w: %w", kit.ErrSendRejected, err)
}
