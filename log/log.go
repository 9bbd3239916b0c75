package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const EnvPath = "TALKBACK_LOG_PATH"

var (
	diagLog   zerolog.Logger
	diagFile  *os.File
	convoFile *os.File
	logMu     sync.Mutex
	logReady  bool
	pid       int
	dir       string
)

// ResolveDir picks the log directory: the flag, then TALKBACK_LOG_PATH,
// then the OS default. Relative paths are taken from the working directory.
func ResolveDir(flagPath string) (string, error) {
	p := flagPath
	if p == "" {
		p = os.Getenv(EnvPath)
	}
	if p == "" {
		return getDefaultDir()
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, "diagnostics_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	convoFile, err = os.OpenFile(filepath.Join(dir, "conversation_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	diagLog = zerolog.New(zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05.000",
		NoColor:    true,
	}).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if convoFile != nil {
		convoFile.Close()
		convoFile = nil
	}
	logReady = false
}

// Logger returns the diagnostics logger tagged with component, or a no-op
// logger before Init.
func Logger(component string) zerolog.Logger {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return zerolog.Nop()
	}
	return diagLog.With().Str("component", component).Logger()
}

// withDiag runs fn against the diagnostics logger while holding logMu, so
// Close cannot release the file mid-write. It is a no-op before Init.
func withDiag(fn func(l *zerolog.Logger)) {
	logMu.Lock()
	defer logMu.Unlock()
	if logReady {
		fn(&diagLog)
	}
}

func Info(msg string) {
	withDiag(func(l *zerolog.Logger) { l.Info().Msg(msg) })
}

func Errorf(format string, args ...any) {
	withDiag(func(l *zerolog.Logger) { l.Error().Msg(fmt.Sprintf(format, args...)) })
}

func Warnf(format string, args ...any) {
	withDiag(func(l *zerolog.Logger) { l.Warn().Msg(fmt.Sprintf(format, args...)) })
}

// Conversation appends one transcript line.
func Conversation(sender, text string) {
	logMu.Lock()
	defer logMu.Unlock()
	if !logReady {
		return
	}
	fmt.Fprintf(convoFile, "%s\t[%d]\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, sender, text)
}

func SessionStart(server, format string) {
	withDiag(func(l *zerolog.Logger) {
		l.Info().Str("server", server).Str("format", format).Msg("session_start")
	})
}

func SessionEnd(messages int) {
	withDiag(func(l *zerolog.Logger) {
		l.Info().Int("messages", messages).Msg("session_end")
	})
}
