package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/mandyss10/Sentinel/internal/config"
)

// setupLogging configures the global zerolog logger. The returned closer
// releases a log file, if one was opened.
func setupLogging(cfg config.LoggingConfig, debug bool) (io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
		isTTY  bool
	)
	switch cfg.Output {
	case "", "stdout":
		out, isTTY = os.Stdout, term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 -- fd fits in int
	case "stderr":
		out, isTTY = os.Stderr, term.IsTerminal(int(os.Stderr.Fd())) // #nosec G115 -- fd fits in int
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		out, closer = f, f
	}

	console := cfg.Format == "console" || (cfg.Format == "auto" && isTTY)
	if console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
