package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"badlionbot/internal/eventbus"
	"badlionbot/internal/ratelimit"
	"badlionbot/internal/responder/reply"
	"badlionbot/internal/transport"
	logx "badlionbot/pkg/logx"
)

type fakeTransport struct {
	mu        sync.Mutex
	direct    []string
	channel   []string
	directErr error
	sendErr   error
}

func (f *fakeTransport) SendDirect(_ context.Context, _ transport.Member, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, text)
	return f.directErr
}

func (f *fakeTransport) SendToChannel(_ context.Context, ch transport.Channel, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = append(f.channel, ch.ID+"|"+text)
	return f.sendErr
}

func (f *fakeTransport) ListTextChannels(context.Context, string) ([]transport.Channel, error) {
	return []transport.Channel{{ID: "general", Name: "general"}}, nil
}

func (f *fakeTransport) CanSendIn(context.Context, transport.Channel) bool { return true }

func (f *fakeTransport) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.direct), len(f.channel)
}

func message(userID, content string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID:      "m-" + userID,
		Author:  transport.User{ID: userID, Username: "user" + userID},
		Content: content,
		Channel: transport.Channel{ID: "c1", GuildID: "g1", Name: "general"},
	}}
}

func join(m transport.Member) transport.Update {
	return transport.Update{Kind: transport.UpdateMemberJoin, Member: &m}
}

func mustReply(t *testing.T, text string, mode reply.Mode) string {
	t.Helper()
	r, ok := reply.Select(text, mode)
	if !ok {
		t.Fatalf("reply.Select(%q) found no keyword", text)
	}
	return r
}

func TestMessageReplyInChannel(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft, Options{Mode: reply.ModeAccountsAvailable})
	text := "Where do I get a badlion account?"
	r.Handle(context.Background(), message("7", text))

	want := "c1|<@7> — " + mustReply(t, text, reply.ModeAccountsAvailable)
	if len(ft.channel) != 1 || ft.channel[0] != want {
		t.Fatalf("channel sends = %q, want [%q]", ft.channel, want)
	}
	if st := r.Stats(); st.Sent != 1 || st.Updates != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMessageLimitPerUser(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft, Options{Limiter: ratelimit.New(5)})
	for i := 0; i < 6; i++ {
		r.Handle(context.Background(), message("1", "badlion"))
	}
	r.Handle(context.Background(), message("2", "badlion"))

	if _, n := ft.counts(); n != 6 {
		t.Fatalf("channel sends = %d, want 5 for user 1 plus 1 for user 2", n)
	}
	if st := r.Stats(); st.Suppressed != 1 {
		t.Fatalf("suppressed = %d, want 1", st.Suppressed)
	}
}

func TestMessageIgnoresBotsAndNonKeywords(t *testing.T) {
	ft := &fakeTransport{}
	lim := ratelimit.New(5)
	r := New(ft, Options{Limiter: lim})

	bot := message("9", "badlion")
	bot.Message.Author.Bot = true
	r.Handle(context.Background(), bot)
	r.Handle(context.Background(), message("3", "badlionfan here"))
	r.Handle(context.Background(), message("3", "hello there"))

	if _, n := ft.counts(); n != 0 {
		t.Fatalf("no replies expected, got %d", n)
	}
	if lim.Count("9") != 0 || lim.Count("3") != 0 {
		t.Fatalf("non-triggers must not consume quota")
	}
}

func TestFailedSendStillConsumesQuota(t *testing.T) {
	ft := &fakeTransport{sendErr: fmt.Errorf("missing access: %w", transport.ErrSendRejected)}
	lim := ratelimit.New(5)
	r := New(ft, Options{Limiter: lim})
	r.Handle(context.Background(), message("4", "badlion"))

	if lim.Count("4") != 1 {
		t.Fatalf("count = %d, want 1", lim.Count("4"))
	}
	if st := r.Stats(); st.Failed != 1 || st.Sent != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestClaimedModeArabicContext(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft, Options{Mode: reply.ModeAccountsClaimed})
	text := "وين بادليون والقناة"
	r.Handle(context.Background(), message("5", text))

	want := "c1|<@5> — " + mustReply(t, text, reply.ModeAccountsClaimed)
	if len(ft.channel) != 1 || ft.channel[0] != want {
		t.Fatalf("channel sends = %q, want [%q]", ft.channel, want)
	}
}

func TestMemberJoinDirectMessage(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft, Options{})
	m := transport.Member{User: transport.User{ID: "11", Username: "steve"}, GuildID: "g1", Nick: "badlion room"}
	r.Handle(context.Background(), join(m))

	want := "<@11> — " + mustReply(t, "steve badlion room", reply.ModeAccountsAvailable)
	if len(ft.direct) != 1 || ft.direct[0] != want {
		t.Fatalf("direct = %q, want [%q]", ft.direct, want)
	}
	if st := r.Stats(); st.Private != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestMemberJoinNotRateLimited(t *testing.T) {
	ft := &fakeTransport{}
	lim := ratelimit.New(1)
	r := New(ft, Options{Limiter: lim})
	m := transport.Member{User: transport.User{ID: "12", Username: "badlion"}, GuildID: "g1"}
	for i := 0; i < 3; i++ {
		r.Handle(context.Background(), join(m))
	}
	if n, _ := ft.counts(); n != 3 {
		t.Fatalf("direct sends = %d, want 3", n)
	}
	if lim.Count("12") != 0 {
		t.Fatalf("joins must not touch the limiter")
	}
}

func TestMemberJoinFallback(t *testing.T) {
	ft := &fakeTransport{directErr: fmt.Errorf("closed: %w", transport.ErrDeliveryForbidden)}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	r := New(ft, Options{Bus: bus})
	m := transport.Member{User: transport.User{ID: "13", Username: "x"}, GuildID: "g1", DisplayName: "Badlion"}
	r.Handle(context.Background(), join(m))

	if _, n := ft.counts(); n != 1 {
		t.Fatalf("fallback sends = %d, want 1", n)
	}
	var got []string
	for len(events) > 0 {
		got = append(got, (<-events).Type)
	}
	if strings.Join(got, ",") != eventbus.TypeUpdateReceived+","+eventbus.TypeDeliveryFallback {
		t.Fatalf("events = %v", got)
	}
}

func TestMemberJoinWithoutKeyword(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft, Options{})
	r.Handle(context.Background(), join(transport.Member{User: transport.User{ID: "1", Username: "alex"}, Nick: "lion"}))
	if d, c := ft.counts(); d+c != 0 {
		t.Fatalf("no delivery expected")
	}
}

func TestJoinText(t *testing.T) {
	cases := []struct {
		m    transport.Member
		want string
	}{
		{transport.Member{User: transport.User{Username: "a"}, DisplayName: "b", Nick: "c"}, "a b c"},
		{transport.Member{User: transport.User{Username: "a"}, Nick: "c"}, "a c"},
		{transport.Member{DisplayName: "b"}, "b"},
		{transport.Member{}, ""},
	}
	for _, tc := range cases {
		if got := JoinText(tc.m); got != tc.want {
			t.Fatalf("JoinText(%+v) = %q, want %q", tc.m, got, tc.want)
		}
	}
}

func TestRunConcurrentTriggersRespectLimit(t *testing.T) {
	ft := &fakeTransport{}
	r := New(ft, Options{Limiter: ratelimit.New(5), Workers: 8, Log: logx.Nop()})
	updates := make(chan transport.Update)

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), updates) }()

	for i := 0; i < 40; i++ {
		updates <- message("42", "badlion channel")
	}
	close(updates)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after updates closed")
	}
	if _, n := ft.counts(); n != 5 {
		t.Fatalf("channel sends = %d, want 5", n)
	}
	if st := r.Stats(); st.Suppressed != 35 || st.Updates != 40 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := New(&fakeTransport{}, Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, make(chan transport.Update)) }()
	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
