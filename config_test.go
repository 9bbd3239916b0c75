package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"talkback/capture"
	"talkback/encoder"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{envServerURL, envToken, envHoldKey} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := loadConfig(nil, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != defaultServerURL {
		t.Errorf("server = %q", cfg.ServerURL)
	}
	if cfg.MinDuration != capture.DefaultMinDuration || cfg.MaxDuration != capture.DefaultMaxDuration {
		t.Errorf("durations = %v..%v", cfg.MinDuration, cfg.MaxDuration)
	}
	if cfg.Retries != 5 || cfg.RetryDelay != time.Second || cfg.RetryMaxDelay != 16*time.Second {
		t.Errorf("retry = %d %v %v", cfg.Retries, cfg.RetryDelay, cfg.RetryMaxDelay)
	}
	if !slices.Equal(cfg.Formats, encoder.DefaultPreferences) {
		t.Errorf("formats = %v", cfg.Formats)
	}
	if cfg.HoldKey.String() != "ctrl+shift+space" {
		t.Errorf("key = %s", cfg.HoldKey)
	}
	if !cfg.TUI || !cfg.Beep || cfg.Mute {
		t.Errorf("toggles = tui:%v beep:%v mute:%v", cfg.TUI, cfg.Beep, cfg.Mute)
	}
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	clearEnv(t)
	t.Setenv(envServerURL, "wss://voice.example.com/ws")
	t.Setenv(envToken, "secret")
	t.Setenv(envHoldKey, "f9")

	cfg, err := loadConfig([]string{"-max", "30s", "-formats", "audio/wav, audio/flac", "-mute"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "wss://voice.example.com/ws" || cfg.Token != "secret" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.HoldKey.String() != "f9" {
		t.Errorf("key = %s", cfg.HoldKey)
	}
	if cfg.MaxDuration != 30*time.Second || !cfg.Mute {
		t.Errorf("flags not applied: max=%v mute=%v", cfg.MaxDuration, cfg.Mute)
	}
	if want := []string{"audio/wav", "audio/flac"}; !slices.Equal(cfg.Formats, want) {
		t.Errorf("formats = %v, want %v", cfg.Formats, want)
	}

	tc := cfg.transportConfig()
	if got := tc.Header.Get("Authorization"); got != "Bearer secret" {
		t.Errorf("authorization = %q", got)
	}

	cfg, err = loadConfig([]string{"-server", "ws://override/ws"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "ws://override/ws" {
		t.Errorf("flag should win over env, got %q", cfg.ServerURL)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"http url", []string{"-server", "http://x"}, "-server"},
		{"min above max", []string{"-min", "2s", "-max", "1s"}, "-min"},
		{"no retries", []string{"-retries", "0"}, "-retries"},
		{"cap below base", []string{"-retry-delay", "2s", "-retry-max-delay", "1s"}, "-retry-max-delay"},
		{"empty formats", []string{"-formats", " , "}, "-formats"},
		{"bad key", []string{"-key", "ctrl+"}, "-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadConfig(tt.args, io.Discard)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoadConfigHelp(t *testing.T) {
	_, err := loadConfig([]string{"-h"}, io.Discard)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("err = %v, want flag.ErrHelp", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("TALKBACK_SERVER_URL=ws://from-dotenv/ws\n"), 0644); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv(envServerURL)
	if err := loadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv(envServerURL); got != "ws://from-dotenv/ws" {
		t.Errorf("env = %q", got)
	}
	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing file should be ignored, got %v", err)
	}
}
