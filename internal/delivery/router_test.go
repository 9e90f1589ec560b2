package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"remindd/internal/reminder"
	"remindd/pkg/logx"
)

type scriptedSender struct {
	mu    sync.Mutex
	sent  []string // addresses, in call order
	errAt map[string]error
}

func (s *scriptedSender) Send(_ context.Context, address string, _ Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, address)
	return s.errAt[address]
}

func newTestRouter(t *testing.T) (*Router, *scriptedSender) {
	t.Helper()
	s := &scriptedSender{errAt: map[string]error{}}
	r := NewRouter(Config{RatePerSec: 1000}, logx.Nop(), nil)
	r.Register(reminder.ChannelTelegram, s)
	r.Register(reminder.ChannelWebhook, s)
	return r, s
}

func TestDeliverOrdersByRankAndSkipsDisabled(t *testing.T) {
	t.Parallel()
	r, s := newTestRouter(t)

	channels := []reminder.Channel{
		{Type: reminder.ChannelWebhook, Address: "second", Rank: 2, Enabled: true},
		{Type: reminder.ChannelTelegram, Address: "off", Rank: 0, Enabled: false},
		{Type: reminder.ChannelTelegram, Address: "first", Rank: 1, Enabled: true},
	}

	outcomes, err := r.Deliver(context.Background(), "alice", channels, Message{Body: "hi"})
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if got, want := s.sent, []string{"first", "second"}; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("send order = %v, want %v", got, want)
	}
	if len(outcomes) != 2 {
		t.Fatalf("len(outcomes) = %d, want one per enabled channel", len(outcomes))
	}
}

func TestDeliverAttemptsEveryChannelIndependently(t *testing.T) {
	t.Parallel()
	r, s := newTestRouter(t)
	s.errAt["first"] = errors.New("bot offline")

	channels := []reminder.Channel{
		{Type: reminder.ChannelTelegram, Address: "first", Rank: 1, Enabled: true},
		{Type: reminder.ChannelWebhook, Address: "second", Rank: 2, Enabled: true},
	}

	outcomes, err := r.Deliver(context.Background(), "alice", channels, Message{Body: "hi"})
	if err != nil {
		t.Fatalf("one working channel must make the overall outcome a success, got %v", err)
	}
	if outcomes[0].OK() || !outcomes[1].OK() {
		t.Fatalf("outcomes = [%v, %v], want first failed and second ok", outcomes[0].Err, outcomes[1].Err)
	}
}

func TestDeliverNoEnabledChannels(t *testing.T) {
	t.Parallel()
	r, _ := newTestRouter(t)

	for name, channels := range map[string][]reminder.Channel{
		"empty":        nil,
		"all disabled": {{Type: reminder.ChannelTelegram, Address: "x", Enabled: false}},
	} {
		if _, err := r.Deliver(context.Background(), "alice", channels, Message{}); !errors.Is(err, ErrNoChannels) {
			t.Errorf("%s: err = %v, want ErrNoChannels", name, err)
		}
	}
}

func TestDeliverAllFailed(t *testing.T) {
	t.Parallel()
	r, s := newTestRouter(t)
	s.errAt["a"] = errors.New("down")
	s.errAt["b"] = errors.New("also down")

	channels := []reminder.Channel{
		{Type: reminder.ChannelTelegram, Address: "a", Rank: 1, Enabled: true},
		{Type: reminder.ChannelWebhook, Address: "b", Rank: 2, Enabled: true},
	}

	outcomes, err := r.Deliver(context.Background(), "alice", channels, Message{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	// Both attempts are still recorded for the caller.
	if len(outcomes) != 2 || outcomes[0].Err == nil || outcomes[1].Err == nil {
		t.Fatalf("outcomes = %v, want two recorded failures", outcomes)
	}
}

func TestDeliverUnregisteredChannelType(t *testing.T) {
	t.Parallel()
	r := NewRouter(Config{RatePerSec: 1000}, logx.Nop(), nil)

	channels := []reminder.Channel{
		{Type: reminder.ChannelLog, Address: "x", Enabled: true},
	}
	_, err := r.Deliver(context.Background(), "alice", channels, Message{})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed when no sender is registered", err)
	}
}

func TestCombine(t *testing.T) {
	t.Parallel()

	if got := Combine(nil); got.Subject != "" || got.Body != "" {
		t.Fatalf("Combine(nil) = %+v, want zero message", got)
	}

	single := Combine([]Item{{Title: "Take medication", Body: "with food"}})
	if single.Subject != "Take medication" || single.Body != "with food" {
		t.Fatalf("single item must pass through unchanged, got %+v", single)
	}

	multi := Combine([]Item{
		{Title: "Take medication", Body: "with food"},
		{Title: "Call dentist"},
		{Title: "Water plants"},
	})
	if multi.Subject != "You have 3 reminders" {
		t.Fatalf("Subject = %q", multi.Subject)
	}
	for i, want := range []string{"1. Take medication - with food", "2. Call dentist", "3. Water plants"} {
		if !strings.Contains(multi.Body, want) {
			t.Fatalf("Body missing line %d %q:\n%s", i+1, want, multi.Body)
		}
	}
}

func TestMessageText(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		msg  Message
		want string
	}{
		{Message{Subject: "s", Body: "b"}, "s\n\nb"},
		{Message{Subject: "s"}, "s"},
		{Message{Body: "b"}, "b"},
	} {
		if got := tc.msg.Text(); got != tc.want {
			t.Errorf("Text(%+v) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}
