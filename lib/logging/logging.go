package logging

import (
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the global logrus logger.
type Options struct {
	Level  string
	Format string // "text" or "json"
	File   string // empty logs to stdout
	Debug  bool
}

// Setup applies opts to the standard logrus logger and returns the output in use.
// The caller closes it on shutdown when it is a file.
func Setup(opts Options) io.Writer {
	level, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil {
		level = log.InfoLevel
	}
	if opts.Debug {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: log.FieldMap{
				log.FieldKeyTime: "timestamp",
				log.FieldKeyMsg:  "message",
			},
		})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}
	log.SetOutput(out)

	if err != nil && opts.Level != "" {
		log.Warnf("Unknown log level %q, using %s", opts.Level, level)
	}
	return out
}
