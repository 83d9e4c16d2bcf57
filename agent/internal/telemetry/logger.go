package telemetry

import (
	"io"
	"log/slog"
	"strings"

	charmlog "github.com/charmbracelet/log"
	"github.com/charmbracelet/lipgloss"
	"github.com/cockroachdb/errors"
)

// LevelCritical is the severity of failures that need operator attention
// while the agent keeps running.
const LevelCritical = slog.Level(12)

// ParseLevel maps a configured level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "critical":
		return LevelCritical, nil
	}
	return 0, errors.Newf("telemetry: unknown log level %q", name)
}

// NewLogger builds the process logger. format is json or text.
func NewLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	switch format {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       lvl,
			ReplaceAttr: replaceLevel,
		})), nil
	case "text":
		styles := charmlog.DefaultStyles()
		styles.Levels[charmlog.Level(LevelCritical)] = lipgloss.NewStyle().
			SetString("CRIT").
			Bold(true).
			MaxWidth(4).
			Foreground(lipgloss.Color("134"))
		h := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmlog.Level(lvl),
			ReportTimestamp: true,
		})
		h.SetStyles(styles)
		return slog.New(h), nil
	}
	return nil, errors.Newf("telemetry: unknown log format %q", format)
}

// replaceLevel names LevelCritical instead of slog's default "ERROR+4".
func replaceLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		a.Value = slog.StringValue("CRITICAL")
	}
	return a
}
