package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func TestResolveDir(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		flag string
		env  string
		want string
	}{
		{"flag absolute", "/tmp/mylog", "/tmp/ignored", "/tmp/mylog"},
		{"flag relative", "logs", "", filepath.Join(wd, "logs")},
		{"env", "", "/tmp/talkback-env-log", "/tmp/talkback-env-log"},
		{"env relative", "", "envlogs", filepath.Join(wd, "envlogs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvPath, tt.env)
			got, err := ResolveDir(tt.flag)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(EnvPath, "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "talkback") {
		t.Errorf("default dir %q does not mention talkback", got)
	}
}

func TestInitCreatesFiles(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"diagnostics_log.txt", "conversation_log.txt"} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
}

func TestConversation(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Conversation("agent", "your table is booked")

	data, err := os.ReadFile(filepath.Join(tmp, "conversation_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, "\tagent\tyour table is booked\n") {
		t.Errorf("unexpected line %q", line)
	}
}

func TestLoggerWritesComponent(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	l := Logger("transport")
	l.Info().Msg("connection_state")
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "component=transport") || !strings.Contains(string(data), "connection_state") {
		t.Errorf("diagnostics missing entry: %q", data)
	}
}

func TestLoggerBeforeInit(t *testing.T) {
	Close()
	l := Logger("x")
	l.Info().Msg("dropped") // must not panic
	Info("dropped")
	Conversation("user", "dropped")
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close()
}

func TestHelpersConcurrentWithClose(t *testing.T) {
	setupLogDir(t)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				Info("tick")
				Warnf("tick %d", j)
				Conversation("agent", "tick")
			}
		}()
	}
	for i := 0; i < 20; i++ {
		if err := Init(); err != nil {
			t.Fatal(err)
		}
		Close()
	}
	wg.Wait()
}

func TestSessionMarkers(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	SessionStart("ws://localhost:8080/ws", "audio/wav")
	SessionEnd(3)
	Close()

	data, err := os.ReadFile(filepath.Join(tmp, "diagnostics_log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"session_start", "format=audio/wav", "session_end", "messages=3"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("diagnostics missing %q", want)
		}
	}
}
