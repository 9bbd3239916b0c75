package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"talkback/playback"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fakePlayer struct {
	calls []string
	err   error
}

func (p *fakePlayer) Play(payload, format string) error {
	p.calls = append(p.calls, payload+"|"+format)
	return p.err
}

func newStore(player Player) (*Store, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(Config{Player: player, Logger: zerolog.Nop(), Now: clock.Now}), clock
}

func TestAppendOrderAndIDs(t *testing.T) {
	s, clock := newStore(nil)
	s.Append(Message{Sender: User, Text: "table for two"})
	clock.Advance(300 * time.Millisecond)
	s.Append(Message{Sender: Agent, Text: "what time?"})

	msgs := s.Messages()
	if len(msgs) != 2 || msgs[0].Sender != User || msgs[1].Sender != Agent {
		t.Fatalf("messages = %+v", msgs)
	}
	if !msgs[0].Time().Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("time recovered from id = %v", msgs[0].Time())
	}
	if msgs[0].ID.Compare(msgs[1].ID) >= 0 {
		t.Error("ids not increasing")
	}
}

func TestDedupWindow(t *testing.T) {
	tests := []struct {
		name   string
		gap    time.Duration
		second Message
		kept   bool
	}{
		{"same text inside window", time.Second, Message{Sender: Agent, Text: "hello"}, false},
		{"same text at window edge", DefaultWindow, Message{Sender: Agent, Text: "hello"}, false},
		{"same text after window", DefaultWindow + time.Millisecond, Message{Sender: Agent, Text: "hello"}, true},
		{"different text", 10 * time.Millisecond, Message{Sender: Agent, Text: "hello!"}, true},
		{"different sender", 10 * time.Millisecond, Message{Sender: User, Text: "hello"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newStore(nil)
			if !s.Append(Message{Sender: Agent, Text: "hello"}) {
				t.Fatal("first append rejected")
			}
			clock.Advance(tt.gap)
			if got := s.Append(tt.second); got != tt.kept {
				t.Errorf("Append = %v, want %v", got, tt.kept)
			}
		})
	}
}

func TestDedupLooksPastOtherMessages(t *testing.T) {
	s, clock := newStore(nil)
	s.Append(Message{Sender: Agent, Text: "hello"})
	clock.Advance(200 * time.Millisecond)
	s.Append(Message{Sender: User, Text: "hi"})
	clock.Advance(200 * time.Millisecond)
	if s.Append(Message{Sender: Agent, Text: "hello"}) {
		t.Error("duplicate behind an unrelated message was kept")
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestAgentAudioDispatch(t *testing.T) {
	p := &fakePlayer{}
	s, _ := newStore(p)
	s.Append(Message{Sender: User, Text: "hi", Audio: "ignored"})
	s.Append(Message{Sender: Agent, Text: "no audio"})
	s.Append(Message{Sender: Agent, Text: "with audio", Audio: "AAAA", AudioFormat: "wav"})
	if len(p.calls) != 1 || p.calls[0] != "AAAA|wav" {
		t.Errorf("player calls = %v", p.calls)
	}
}

func TestMutedDropsAudio(t *testing.T) {
	p := &fakePlayer{}
	s, _ := newStore(p)
	s.SetMuted(true)
	if !s.Append(Message{Sender: Agent, Text: "quiet", Audio: "AAAA", AudioFormat: "wav"}) {
		t.Fatal("muted message should still be appended")
	}
	if len(p.calls) != 0 {
		t.Error("audio played while muted")
	}
	s.SetMuted(false)
	if s.Muted() {
		t.Error("Muted() still true")
	}
	s.Append(Message{Sender: Agent, Text: "loud", Audio: "BBBB", AudioFormat: "wav"})
	if len(p.calls) != 1 {
		t.Errorf("player calls = %v", p.calls)
	}
}

func TestDuplicateAudioNotReplayed(t *testing.T) {
	p := &fakePlayer{}
	s, clock := newStore(p)
	s.Append(Message{Sender: Agent, Text: "same", Audio: "AAAA"})
	clock.Advance(100 * time.Millisecond)
	s.Append(Message{Sender: Agent, Text: "same", Audio: "AAAA"})
	if len(p.calls) != 1 {
		t.Errorf("duplicate response played %d times", len(p.calls))
	}
}

func TestPlayerErrors(t *testing.T) {
	var reported []error
	blocked := &fakePlayer{err: playback.ErrBlocked}
	s := New(Config{Player: blocked, Logger: zerolog.Nop(), OnError: func(err error) { reported = append(reported, err) }})
	s.Append(Message{Sender: Agent, Text: "a", Audio: "AAAA"})
	if len(reported) != 0 {
		t.Errorf("blocked playback reported as error: %v", reported)
	}

	broken := &fakePlayer{err: errors.New("bad payload")}
	s = New(Config{Player: broken, Logger: zerolog.Nop(), OnError: func(err error) { reported = append(reported, err) }})
	s.Append(Message{Sender: Agent, Text: "b", Audio: "AAAA"})
	if len(reported) != 1 {
		t.Errorf("reported = %v, want one error", reported)
	}
}

func TestMessagesIsCopy(t *testing.T) {
	s, _ := newStore(nil)
	s.Append(Message{Sender: User, Text: "original"})
	msgs := s.Messages()
	msgs[0].Text = "changed"
	if s.Messages()[0].Text != "original" {
		t.Error("Messages exposed internal storage")
	}
}

func TestLast(t *testing.T) {
	s, clock := newStore(nil)
	if _, ok := s.Last(Agent); ok {
		t.Fatal("Last on empty store")
	}
	s.Append(Message{Sender: Agent, Text: "one"})
	clock.Advance(time.Second)
	s.Append(Message{Sender: User, Text: "two"})
	m, ok := s.Last(Agent)
	if !ok || m.Text != "one" {
		t.Errorf("Last(Agent) = %+v, %v", m, ok)
	}
}

func TestOnAppend(t *testing.T) {
	var seen []string
	s := New(Config{Logger: zerolog.Nop(), OnAppend: func(m Message) { seen = append(seen, m.Text) }})
	s.Append(Message{Sender: User, Text: "x"})
	s.Append(Message{Sender: User, Text: "x"})
	if len(seen) != 1 {
		t.Errorf("OnAppend calls = %v", seen)
	}
}
