package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"talkback/capture"
	"talkback/conversation"
	"talkback/encoder"
	"talkback/hotkey"
	"talkback/transport"
)

const (
	envServerURL = "TALKBACK_SERVER_URL"
	envToken     = "TALKBACK_TOKEN"
	envHoldKey   = "TALKBACK_HOLD_KEY"

	defaultServerURL = "ws://localhost:8080/ws"
)

type Config struct {
	ServerURL string
	Token     string
	HoldKey   hotkey.Binding

	MinDuration time.Duration
	MaxDuration time.Duration
	DedupWindow time.Duration

	Retries       int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration

	Formats         []string
	Mute            bool
	AutoplayGesture bool
	Beep            bool

	Device  string
	Setup   bool
	LogPath string
	TUI     bool
	GUI     bool
	Version bool
}

// loadEnvFile loads .env from the working directory when present. Variables
// already set in the environment win.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig parses args with defaults drawn from the environment.
func loadConfig(args []string, stderr io.Writer) (Config, error) {
	var cfg Config
	fs := flag.NewFlagSet("talkback", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var key, formats string
	fs.StringVar(&cfg.ServerURL, "server", getEnv(envServerURL, defaultServerURL), "WebSocket server URL")
	fs.StringVar(&cfg.Token, "token", os.Getenv(envToken), "bearer token sent on connect")
	fs.StringVar(&key, "key", getEnv(envHoldKey, hotkey.DefaultBinding), "hold-to-talk key (e.g. ctrl+shift+space, f9)")
	fs.DurationVar(&cfg.MinDuration, "min", capture.DefaultMinDuration, "recordings shorter than this are discarded")
	fs.DurationVar(&cfg.MaxDuration, "max", capture.DefaultMaxDuration, "recordings stop automatically after this long")
	fs.DurationVar(&cfg.DedupWindow, "dedup", conversation.DefaultWindow, "identical messages inside this window are dropped")
	fs.IntVar(&cfg.Retries, "retries", 5, "reconnect attempts before giving up")
	fs.DurationVar(&cfg.RetryDelay, "retry-delay", time.Second, "first reconnect delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", 16*time.Second, "reconnect delay cap")
	fs.StringVar(&formats, "formats", strings.Join(encoder.DefaultPreferences, ","), "recording formats in order of preference")
	fs.BoolVar(&cfg.Mute, "mute", false, "start with agent audio muted")
	fs.BoolVar(&cfg.AutoplayGesture, "autoplay-gesture", false, "hold agent audio until the first gesture")
	fs.BoolVar(&cfg.Beep, "beep", true, "play start/stop cues")
	fs.StringVar(&cfg.Device, "device", "", "use the input device whose name contains this text")
	fs.BoolVar(&cfg.Setup, "setup", false, "pick the input device interactively")
	fs.StringVar(&cfg.LogPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.BoolVar(&cfg.TUI, "tui", true, "run with terminal UI")
	fs.BoolVar(&cfg.GUI, "gui", false, "run the talk button window (needs -tags gui)")
	fs.BoolVar(&cfg.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	b, err := hotkey.ParseBinding(key)
	if err != nil {
		return cfg, fmt.Errorf("-key: %w", err)
	}
	cfg.HoldKey = b
	cfg.Formats = splitList(formats)
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Version {
		return nil
	}
	if !strings.HasPrefix(c.ServerURL, "ws://") && !strings.HasPrefix(c.ServerURL, "wss://") {
		return fmt.Errorf("-server must be a ws:// or wss:// URL, got %q", c.ServerURL)
	}
	if c.MinDuration < 0 || c.MaxDuration <= 0 || c.MinDuration >= c.MaxDuration {
		return fmt.Errorf("-min (%v) must be below -max (%v)", c.MinDuration, c.MaxDuration)
	}
	if c.Retries < 1 {
		return fmt.Errorf("-retries must be at least 1")
	}
	if c.RetryDelay <= 0 || c.RetryMaxDelay < c.RetryDelay {
		return fmt.Errorf("-retry-max-delay (%v) must be at least -retry-delay (%v)", c.RetryMaxDelay, c.RetryDelay)
	}
	if len(c.Formats) == 0 {
		return fmt.Errorf("-formats is empty")
	}
	return nil
}

func (c Config) transportConfig() transport.Config {
	cfg := transport.Config{
		URL:                  c.ServerURL,
		MaxReconnectAttempts: c.Retries,
		BaseDelay:            c.RetryDelay,
		MaxDelay:             c.RetryMaxDelay,
	}
	if c.Token != "" {
		cfg.Header = http.Header{"Authorization": {"Bearer " + c.Token}}
	}
	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
