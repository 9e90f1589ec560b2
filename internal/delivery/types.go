// Package delivery routes messages to a user's channels: enabled channels in
// ascending rank order, one attempt per channel, first success wins the
// overall outcome. Channel transports plug in behind the Sender interface.
package delivery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"remindd/internal/reminder"
)

// Message is one channel-agnostic message to a user.
type Message struct {
	Subject string
	Body    string
	Tone    string
}

// Text renders the message for plain-text transports.
func (m Message) Text() string {
	if m.Subject == "" {
		return m.Body
	}
	if m.Body == "" {
		return m.Subject
	}
	return m.Subject + "\n\n" + m.Body
}

// Outcome records one channel attempt.
type Outcome struct {
	Channel  reminder.Channel
	Err      error
	At       time.Time
	Duration time.Duration
}

func (o Outcome) OK() bool { return o.Err == nil }

// Sender is one channel transport (external collaborator).
type Sender interface {
	Send(ctx context.Context, address string, msg Message) error
}

// Item is one due engagement to fold into a per-owner message.
type Item struct {
	Title string
	Body  string
}

// Combine merges the due items for one owner into a single message so one
// dispatch pass sends at most one message per owner. A single item passes
// through unchanged; multiple items become an enumerated list.
func Combine(items []Item) Message {
	switch len(items) {
	case 0:
		return Message{}
	case 1:
		return Message{Subject: items[0].Title, Body: items[0].Body}
	}

	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, it.Title)
		if it.Body != "" {
			b.WriteString(" - ")
			b.WriteString(it.Body)
		}
	}
	return Message{
		Subject: fmt.Sprintf("You have %d reminders", len(items)),
		Body:    b.String(),
	}
}

// orderedEnabled filters to enabled channels and sorts by ascending rank.
// Stable so equal ranks keep their configured order.
func orderedEnabled(channels []reminder.Channel) []reminder.Channel {
	out := make([]reminder.Channel, 0, len(channels))
	for _, c := range channels {
		if c.Enabled {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out
}
