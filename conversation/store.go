// Package conversation keeps the ordered transcript of a voice session and
// hands agent audio to the player.
package conversation

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"talkback/playback"
)

const DefaultWindow = 1500 * time.Millisecond

type Sender string

const (
	User  Sender = "user"
	Agent Sender = "agent"
)

type Message struct {
	ID                ulid.ULID
	Sender            Sender
	Text              string
	Audio             string // base64
	AudioFormat       string
	Intent            string
	Entities          json.RawMessage
	ConversationState json.RawMessage
}

// Time recovers the append time from the message id.
func (m Message) Time() time.Time { return ulid.Time(m.ID.Time()) }

type Player interface {
	Play(payload, format string) error
}

type Config struct {
	Window   time.Duration
	Player   Player
	Muted    bool
	Logger   zerolog.Logger
	Now      func() time.Time
	OnError  func(error)
	OnAppend func(Message)
}

type Store struct {
	window   time.Duration
	player   Player
	log      zerolog.Logger
	now      func() time.Time
	onError  func(error)
	onAppend func(Message)

	mu       sync.Mutex
	messages []Message
	muted    bool
}

func New(cfg Config) *Store {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		window:   cfg.Window,
		player:   cfg.Player,
		log:      cfg.Logger,
		now:      cfg.Now,
		onError:  cfg.OnError,
		onAppend: cfg.OnAppend,
		muted:    cfg.Muted,
	}
}

// Append adds m unless a message with the same sender and text was appended
// within the dedup window. It reports whether m was kept.
func (s *Store) Append(m Message) bool {
	now := s.now()

	s.mu.Lock()
	if s.duplicateLocked(m, now) {
		s.mu.Unlock()
		s.log.Debug().Str("sender", string(m.Sender)).Msg("message_duplicate")
		return false
	}
	m.ID = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy())
	s.messages = append(s.messages, m)
	muted := s.muted
	s.mu.Unlock()

	s.log.Info().Str("id", m.ID.String()).Str("sender", string(m.Sender)).Int("chars", len(m.Text)).Msg("message_append")
	if s.onAppend != nil {
		s.onAppend(m)
	}
	if m.Sender == Agent && m.Audio != "" {
		s.dispatch(m, muted)
	}
	return true
}

// duplicateLocked scans backwards while messages are inside the window.
func (s *Store) duplicateLocked(m Message, now time.Time) bool {
	for i := len(s.messages) - 1; i >= 0; i-- {
		prev := s.messages[i]
		if now.Sub(prev.Time()) > s.window {
			return false
		}
		if prev.Sender == m.Sender && prev.Text == m.Text {
			return true
		}
	}
	return false
}

func (s *Store) dispatch(m Message, muted bool) {
	if muted {
		s.log.Info().Str("id", m.ID.String()).Msg("agent_audio_muted")
		return
	}
	if s.player == nil {
		return
	}
	err := s.player.Play(m.Audio, m.AudioFormat)
	switch {
	case err == nil:
	case errors.Is(err, playback.ErrBlocked), errors.Is(err, playback.ErrHeld):
		s.log.Info().Str("id", m.ID.String()).Msg("agent_audio_pending")
	default:
		s.log.Error().Err(err).Str("id", m.ID.String()).Msg("agent_audio_failed")
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// Messages returns a copy of the transcript in append order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Last returns the most recent message from sender.
func (s *Store) Last(sender Sender) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Sender == sender {
			return s.messages[i], true
		}
	}
	return Message{}, false
}

func (s *Store) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	s.log.Info().Bool("muted", muted).Msg("mute_changed")
}

func (s *Store) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}
