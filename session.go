package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/rs/zerolog"

	"talkback/audio"
	"talkback/beep"
	"talkback/capture"
	"talkback/conversation"
	"talkback/encoder"
	"talkback/level"
	"talkback/log"
	"talkback/playback"
	"talkback/recorder"
	"talkback/transport"
)

var errNothingToCopy = errors.New("no agent reply yet")

// uiCommand is a gesture or shortcut coming from the TUI or GUI.
type uiCommand int

const (
	cmdMouseDown uiCommand = iota
	cmdMouseUp
	cmdMouseLeave
	cmdTouchStart
	cmdTouchEnd
	cmdPlayPending
	cmdToggleMute
	cmdCopyReply
)

// voiceSession owns every component of one conversation with the server and
// routes events between them and the sink.
type voiceSession struct {
	cfg  Config
	log  zerolog.Logger
	sink EventSink

	out     audio.PlaybackDevice
	channel *transport.Channel
	rec     *recorder.Recorder
	gate    *playback.AutoplayGate
	player  *playback.Controller
	store   *conversation.Store
	ctrl    *capture.Controller
	cues    *beep.Player

	// copy writes the clipboard; replaced in tests.
	copy func(string) error

	levelMu   sync.Mutex
	levelSrc  level.Source
	levelStop context.CancelFunc
	levelDone chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newVoiceSession(cfg Config, actx audio.Context, dev *audio.DeviceInfo, sink EventSink) (*voiceSession, error) {
	out, err := actx.NewPlayback()
	if err != nil {
		return nil, fmt.Errorf("opening output device: %w", err)
	}

	s := &voiceSession{
		cfg:  cfg,
		log:  log.Logger("session"),
		sink: sink,
		out:  out,
		copy: clipboard.WriteAll,
	}

	s.gate = playback.NewAutoplayGate(out, cfg.AutoplayGesture)
	s.player = playback.New(s.gate, log.Logger("playback"))
	s.player.OnPending(sink.PendingAudio)
	s.cues = beep.New(out, !cfg.Beep, log.Logger("beep"))

	s.rec = recorder.New(recorder.Config{
		Context:     actx,
		Device:      dev,
		Preferences: cfg.Formats,
		Logger:      log.Logger("recorder"),
	})
	if _, err := s.rec.Negotiate(); err != nil {
		out.Close()
		return nil, err
	}

	tcfg := cfg.transportConfig()
	tcfg.Logger = log.Logger("transport")
	s.channel = transport.New(tcfg)

	s.store = conversation.New(conversation.Config{
		Window:   cfg.DedupWindow,
		Player:   s.player,
		Muted:    cfg.Mute,
		Logger:   log.Logger("conversation"),
		OnError:  s.report,
		OnAppend: s.appended,
	})

	s.ctrl = capture.New(capture.Config{
		Recorder:    s.rec,
		Link:        s.channel,
		Playback:    s.player,
		Activator:   s.gate,
		Cues:        s.cues,
		MinDuration: cfg.MinDuration,
		MaxDuration: cfg.MaxDuration,
		Logger:      log.Logger("capture"),
		OnStatus:    s.statusChanged,
		OnError:     s.report,
	})
	return s, nil
}

// Start connects and begins processing inbound events. A failed first dial
// is reported but not fatal: the channel keeps retrying.
func (s *voiceSession) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.channel.OnState(s.stateChanged)
	s.sink.Muted(s.store.Muted())
	s.watchLevel(s.player, 0)

	s.wg.Add(1)
	go s.readEvents(ctx)

	format, _ := s.rec.Negotiate()
	log.SessionStart(s.cfg.ServerURL, format)
	if err := s.channel.Connect(ctx); err != nil {
		s.report(err)
	}
}

func (s *voiceSession) readEvents(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.channel.Events():
			s.handle(ev)
		}
	}
}

func (s *voiceSession) handle(ev transport.Inbound) {
	s.log.Debug().Str("event", transport.EventName(ev)).Msg("event_received")
	switch e := ev.(type) {
	case transport.Transcription:
		s.store.Append(conversation.Message{Sender: conversation.User, Text: e.Text})
	case transport.AgentResponse:
		s.store.Append(conversation.Message{
			Sender:            conversation.Agent,
			Text:              e.Text,
			Audio:             e.Audio,
			AudioFormat:       e.AudioFormat,
			Intent:            e.Intent,
			Entities:          e.Entities,
			ConversationState: e.ConversationState,
		})
		s.ctrl.Settle()
	case transport.StatusUpdate:
		text := e.Message
		if text == "" {
			text = e.Status
		}
		s.sink.Notice(text)
	case transport.ServerError:
		s.sink.Notice(describeError(e))
		s.ctrl.Settle()
	}
}

func (s *voiceSession) appended(m conversation.Message) {
	log.Conversation(string(m.Sender), m.Text)
	s.sink.Message(m)
}

func (s *voiceSession) report(err error) {
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Msg("session_error")
	s.sink.Notice(describeError(err))
}

func (s *voiceSession) stateChanged(st transport.State) {
	s.sink.Connection(st)
	if st == transport.Error {
		s.ctrl.Abort()
		s.sink.Banner(describeError(s.channel.Err()))
	}
}

func (s *voiceSession) statusChanged(st capture.Status) {
	s.sink.Status(st)
	if st == capture.Recording {
		s.watchLevel(s.rec, encoder.SampleRate)
	} else {
		s.watchLevel(s.player, 0)
	}
}

// watchLevel moves the level meter to src. The previous tap is removed
// before the new one is installed.
func (s *voiceSession) watchLevel(src level.Source, rate int) {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	if s.levelSrc == src {
		return
	}
	if s.levelStop != nil {
		s.levelStop()
		<-s.levelDone
		s.levelStop, s.levelDone = nil, nil
	}
	s.levelSrc = src
	if src == nil {
		return
	}
	if rate == 0 {
		// Until a reply plays the player has no rate of its own.
		rate = encoder.SampleRate
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.levelStop, s.levelDone = cancel, done
	readings := level.Attach(ctx, src, level.Options{SampleRate: rate})
	go func() {
		defer close(done)
		for r := range readings {
			s.sink.AudioLevel(r)
		}
	}()
}

func (s *voiceSession) dispatch(cmd uiCommand) {
	switch cmd {
	case cmdMouseDown:
		s.ctrl.MouseDown()
	case cmdMouseUp:
		s.ctrl.MouseUp()
	case cmdMouseLeave:
		s.ctrl.MouseLeave()
	case cmdTouchStart:
		s.ctrl.TouchStart()
	case cmdTouchEnd:
		s.ctrl.TouchEnd()
	case cmdPlayPending:
		s.playPending()
	case cmdToggleMute:
		s.toggleMute()
	case cmdCopyReply:
		if err := s.copyLastReply(); err != nil {
			s.report(err)
		} else {
			s.sink.Notice("Reply copied")
		}
	}
}

func (s *voiceSession) playPending() {
	s.gate.Activate()
	if err := s.player.PlayPending(); err != nil {
		s.report(err)
	}
}

func (s *voiceSession) toggleMute() {
	muted := !s.store.Muted()
	s.store.SetMuted(muted)
	if muted {
		s.player.StopAll()
	}
	s.sink.Muted(muted)
}

func (s *voiceSession) copyLastReply() error {
	m, ok := s.store.Last(conversation.Agent)
	if !ok || m.Text == "" {
		return errNothingToCopy
	}
	if err := s.copy(m.Text); err != nil {
		return fmt.Errorf("copying reply: %w", err)
	}
	return nil
}

func (s *voiceSession) Close() {
	s.ctrl.Abort()
	s.channel.Disconnect()
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.watchLevel(nil, 0)
	s.player.Close()
	s.cues.Close()
	s.gate.Close()
	log.SessionEnd(s.store.Len())
}
