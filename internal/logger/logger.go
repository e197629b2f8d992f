package logger

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

type LogLevel string

const (
	InfoLevel  LogLevel = "INFO"
	ErrorLevel LogLevel = "ERROR"
	DebugLevel LogLevel = "DEBUG"
)

var (
	emailRegex    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex    = regexp.MustCompile(`eyJ[^\s]+`)
	userIDRegex   = regexp.MustCompile(`\buser_id\s*=\s*[0-9a-fA-F-]+\b`)
	passwordRegex = regexp.MustCompile(`\bpassword\s*=\s*\S+`)
)

// Logger is a centralized structured logger
type Logger struct {
	out zerolog.Logger
}

// New creates a new Logger writing JSON lines to stdout
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger writing to w
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		out: zerolog.New(w).With().Timestamp().Logger(),
	}
}

// SetLevel sets the global minimum level ("debug", "info", "error", ...).
// Unknown levels leave the current level untouched.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

// Anonymize replaces sensitive information in logs (emails, tokens, IDs, passwords)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = userIDRegex.ReplaceAllString(s, "user_id=[USER_ID]")
	s = passwordRegex.ReplaceAllString(s, "password=[REDACTED]")
	return s
}

func (l *Logger) log(module string, level LogLevel, msg string, err error) {
	var ev *zerolog.Event
	switch level {
	case ErrorLevel:
		ev = l.out.Error()
	case DebugLevel:
		ev = l.out.Debug()
	default:
		ev = l.out.Info()
	}
	if module != "" {
		ev = ev.Str("module", module)
	}
	if err != nil {
		ev = ev.Str("error", Anonymize(err.Error()))
	}
	ev.Msg(Anonymize(msg))
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.log(module, InfoLevel, msg, nil)
}

func (l *Logger) Debug(module, msg string) {
	l.log(module, DebugLevel, msg, nil)
}

func (l *Logger) Error(module, msg string, err error) {
	l.log(module, ErrorLevel, msg, err)
}
