package logger

import (
	"io"
	"os"
	"strings"

	"trackpoint/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Setup builds the process logger from cfg and installs it as the global zerolog
// logger. With a file configured, output goes to a rotating file as well as stderr.
func Setup(cfg config.Log) zerolog.Logger {
	lg := New(cfg, os.Stderr)
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	log.Logger = lg
	return lg
}

// New builds a logger writing to w, plus the rotating file of cfg when one is set.
func New(cfg config.Log, w io.Writer) zerolog.Logger {
	if strings.ToLower(cfg.Format) != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05.000"}
	}
	if strings.TrimSpace(cfg.File) != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		w = zerolog.MultiLevelWriter(w, file)
	}
	return zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
