package logging

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	rotates "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"

	"github.com/azaurus1/fanet/internal/config"
)

// ParseLevel maps the config level names onto logrus levels, defaulting to WARN.
func ParseLevel(name string) logrus.Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return logrus.TraceLevel
	case "DEBUG":
		return logrus.DebugLevel
	case "INFO":
		return logrus.InfoLevel
	case "WARN":
		return logrus.WarnLevel
	case "ERROR":
		return logrus.ErrorLevel
	case "FATAL":
		return logrus.FatalLevel
	default:
		return logrus.WarnLevel
	}
}

// Init configures the standard logrus logger. When a log directory is set the
// entries are also written to a time rotated file.
func Init(cfg config.LogConfig) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logrus.SetLevel(ParseLevel(cfg.Level))

	if cfg.Dir == "" {
		return nil
	}

	if _, err := os.Stat(cfg.Dir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}
	filename := cfg.Filename
	if filename == "" {
		filename = "fanet.log"
	}
	logFileName := path.Join(cfg.Dir, filename)

	maxAge := time.Duration(cfg.MaxAge) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	rotation := time.Duration(cfg.RotateTime) * time.Hour
	if rotation <= 0 {
		rotation = time.Hour
	}

	writer, err := rotates.New(
		logFileName+".%Y%m%d%H%M",
		rotates.WithLinkName(logFileName),
		rotates.WithMaxAge(maxAge),
		rotates.WithRotationTime(rotation),
	)
	if err != nil {
		return fmt.Errorf("create rotating log writer: %w", err)
	}

	logrus.AddHook(lfshook.NewHook(lfshook.WriterMap{
		logrus.TraceLevel: writer,
		logrus.DebugLevel: writer,
		logrus.InfoLevel:  writer,
		logrus.WarnLevel:  writer,
		logrus.ErrorLevel: writer,
		logrus.FatalLevel: writer,
		logrus.PanicLevel: writer,
	}, &logrus.TextFormatter{}))
	return nil
}

// Component returns an entry tagged for one part of the simulator. A nil
// parent falls back to the standard logger.
func Component(parent *logrus.Entry, name string, fields logrus.Fields) *logrus.Entry {
	if parent == nil {
		parent = logrus.NewEntry(logrus.StandardLogger())
	}
	e := parent.WithField("component", name)
	if len(fields) > 0 {
		e = e.WithFields(fields)
	}
	return e
}
