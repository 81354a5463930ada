// package shared defines shared helpers
package shared

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// ConfigureLogger applies the level and formatter from [LoggingConfig].
//
// Unknown values leave the logger's current setting in place.
func ConfigureLogger(l *log.Logger, c LoggingConfig) {
	if lvl, err := log.ParseLevel(c.Level); err == nil {
		l.SetLevel(lvl)
	}

	switch strings.ToLower(c.Format) {
	case "json":
		l.SetFormatter(log.JSONFormatter)
	case "logfmt":
		l.SetFormatter(log.LogfmtFormatter)
	case "text", "":
		l.SetFormatter(log.TextFormatter)
	}
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GenerateState returns a random URL-safe value for the OAuth state parameter.
func GenerateState() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return GenerateID()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// NormalizeTitle folds a playlist title for case-insensitive comparison.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
