package daemon

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/allaspectsdev/promptstudio/internal/version"
)

const logFilename = "promptstudio.log"

// setupLogging points the global logger at dataDir/promptstudio.log, plus a
// console writer on stdout in foreground mode. The returned file must be
// closed by the caller.
func setupLogging(dataDir, level string, foreground bool, stdout io.Writer) (*os.File, error) {
	zerolog.SetGlobalLevel(parseLogLevel(level))

	logPath := filepath.Join(dataDir, logFilename)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file %s: %w", logPath, err)
	}

	writers := []io.Writer{logFile}
	if foreground {
		writers = append(writers, zerolog.ConsoleWriter{Out: stdout, TimeFormat: "15:04:05"})
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Str("service", "promptstudio").
		Str("version", version.Version).
		Logger()
	return logFile, nil
}

// parseLogLevel converts a string log level to a zerolog.Level.
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
