// Package logger builds the structured logger used across a voice session.
//
// There is no package-level logger. A process constructs one *slog.Logger
// with New and passes it to every component that logs. Records are enriched
// with session fields carried in context.Context (see WithSessionID and
// friends) and sensitive values can be scrubbed with RedactSensitiveData.
package logger

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Log format constants
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config describes how the process logger is built.
type Config struct {
	// Level is one of debug, info, warn, error (default info).
	Level string `yaml:"level"`

	// Format is "json" or "text" (default text).
	Format string `yaml:"format"`

	// CommonFields are attached to every record (service, environment, ...).
	CommonFields map[string]string `yaml:"common_fields"`
}

// New builds a logger writing to w. A nil writer means stderr.
func New(cfg Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var base slog.Handler
	if strings.EqualFold(cfg.Format, FormatJSON) {
		base = slog.NewJSONHandler(w, opts)
	} else {
		base = slog.NewTextHandler(w, opts)
	}

	common := make([]slog.Attr, 0, len(cfg.CommonFields))
	for k, v := range cfg.CommonFields {
		common = append(common, slog.String(k, v))
	}

	return slog.New(NewContextHandler(base, common...))
}

// Discard returns a logger that drops every record. Components use it when
// constructed without a logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	// Patterns match common API key formats from various providers.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`sk-[a-zA-Z0-9]{32,}`),     // OpenAI API keys
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),   // Google API keys
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_-]+`), // Bearer tokens
		regexp.MustCompile(`Token\s+[a-f0-9]{40}`),    // Deepgram-style tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
// It replaces matched patterns with a redacted form that preserves the first few characters
// for debugging while hiding the sensitive portion.
func RedactSensitiveData(input string) string {
	result := input

	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			if strings.HasPrefix(match, "Bearer ") {
				return "Bearer [REDACTED]"
			}
			if strings.HasPrefix(match, "Token ") {
				return "Token [REDACTED]"
			}
			// Show first 4 characters for debugging context
			if len(match) > 8 {
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}

	return result
}
