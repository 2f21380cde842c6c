package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logger
type Options struct {
	Level string
	// File enables an additional JSON log file, rotated by size
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Console overrides the human readable output, stdout when nil
	Console io.Writer
}

// Setup configures zerolog's global logger and returns the file sink so the
// caller can close it on shutdown. The returned closer is nil without a file.
func Setup(opts Options) io.Closer {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := opts.Console
	if out == nil {
		out = os.Stdout
	}
	console := zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}

	if opts.File == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return nil
	}

	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    orDefault(opts.MaxSizeMB, 50),
		MaxBackups: orDefault(opts.MaxBackups, 5),
		MaxAge:     orDefault(opts.MaxAgeDays, 14),
		Compress:   true,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
	return file
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
