package types

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
)

const logDir = "/var/log/forge"

// ForgeLogger wraps zerolog so every package logs the same way. It writes to
// journald when available, otherwise to a lock-protected file, and always to
// the console unless quiet is set.
type ForgeLogger struct {
	zerolog.Logger
	fileLock *flock.Flock
	logFile  *os.File
	journald bool
}

// NewForgeLogger creates a new logger with the given name and level.
// The level is used to set the log level, defaulting to info.
// The log level can be overridden by setting the environment variable
// $NAME_DEBUG or $NAME_TRACE to any non-empty value.
func NewForgeLogger(name, level string, quiet bool) ForgeLogger {
	var loggers []io.Writer
	var fileLock *flock.Flock
	var logfile *os.File
	var err error

	if isJournaldAvailable() {
		loggers = append(loggers, getJournaldWriter())
	} else {
		logName := fmt.Sprintf("%s.log", name)
		_ = os.MkdirAll(logDir, os.ModeDir|os.ModePerm)
		logFileName := filepath.Join(logDir, logName)

		logfile, err = os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			loggers = append(loggers, zerolog.ConsoleWriter{Out: logfile, TimeFormat: time.RFC3339, NoColor: true})
		}

		fileLock = flock.New(logFileName + ".lock")
	}

	if !quiet {
		loggers = append(loggers, zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.TimeFormat = time.RFC3339
		}))
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil {
		l = zerolog.InfoLevel
	}

	if os.Getenv(fmt.Sprintf("%s_DEBUG", strings.ToUpper(name))) != "" {
		l = zerolog.DebugLevel
	}
	if os.Getenv(fmt.Sprintf("%s_TRACE", strings.ToUpper(name))) != "" {
		l = zerolog.TraceLevel
	}

	multi := zerolog.MultiLevelWriter(loggers...)
	k := ForgeLogger{
		zerolog.New(multi).With().Timestamp().Logger().Level(l),
		fileLock,
		logfile,
		isJournaldAvailable(),
	}

	runtime.SetFinalizer(&k, func(k *ForgeLogger) {
		k.Cleanup()
	})

	return k
}

func (m *ForgeLogger) Cleanup() {
	if m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
	}

	if m.logFile != nil {
		m.logFile.Close()
		m.logFile = nil
	}
	if m.fileLock != nil {
		m.fileLock.Unlock()
		m.fileLock = nil
	}
}

func NewBufferLogger(b *bytes.Buffer) ForgeLogger {
	return ForgeLogger{
		zerolog.New(b).With().Timestamp().Logger(),
		nil,
		nil,
		true,
	}
}

func NewNullLogger() ForgeLogger {
	return ForgeLogger{
		zerolog.New(io.Discard).With().Timestamp().Logger(),
		nil,
		nil,
		true,
	}
}

func (m *ForgeLogger) SetLevel(level string) {
	l, _ := zerolog.ParseLevel(level)
	m.Logger = m.Logger.Level(l)
}

func (m ForgeLogger) GetLevel() zerolog.Level {
	return m.Logger.GetLevel()
}

func (m ForgeLogger) IsDebug() bool {
	return m.Logger.GetLevel() == zerolog.DebugLevel
}

// Printf style helpers so collaborators that expect a plain formatted logger
// can use us directly.

func (m ForgeLogger) lockedMsg(tpl string, args ...interface{}) string {
	if !m.journald && m.fileLock != nil {
		m.fileLock.Lock()
		defer m.fileLock.Unlock()
		// Add the pid to the log line so searching for it is easier
		tpl = fmt.Sprintf("[%v] ", os.Getpid()) + tpl
	}
	return fmt.Sprintf(tpl, args...)
}

func (m ForgeLogger) Infof(tpl string, args ...interface{}) {
	m.Logger.Info().Msg(m.lockedMsg(tpl, args...))
}

func (m ForgeLogger) Warnf(tpl string, args ...interface{}) {
	m.Logger.Warn().Msg(m.lockedMsg(tpl, args...))
}

func (m ForgeLogger) Debugf(tpl string, args ...interface{}) {
	m.Logger.Debug().Msg(m.lockedMsg(tpl, args...))
}

func (m ForgeLogger) Errorf(tpl string, args ...interface{}) {
	m.Logger.Error().Msg(m.lockedMsg(tpl, args...))
}

func (m ForgeLogger) Tracef(tpl string, args ...interface{}) {
	m.Logger.Trace().Msg(m.lockedMsg(tpl, args...))
}
