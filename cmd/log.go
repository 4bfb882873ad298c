package cmd

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	ArgGlobalLogFormat = "log-format"
	ArgGlobalLogFile   = "log-file"
)

func newFormatter(format string) (logrus.Formatter, error) {
	switch format {
	case "", "text":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	case "prefixed":
		return &prefixed.TextFormatter{FullTimestamp: true}, nil
	default:
		return nil, errors.Errorf("unrecognized log format %q (valid formats are 'text', 'json' and 'prefixed')", format)
	}
}

// configureLogFile copies every log entry to a size-rotated file at path.
// Any hook from a previous invocation is replaced.
func configureLogFile(logger *logrus.Logger, path string) {
	logger.ReplaceHooks(make(logrus.LevelHooks))
	if path == "" {
		return
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
	}

	logger.AddHook(lfshook.NewHook(
		lfshook.WriterMap{
			logrus.DebugLevel: writer,
			logrus.InfoLevel:  writer,
			logrus.WarnLevel:  writer,
			logrus.ErrorLevel: writer,
			logrus.PanicLevel: writer,
		},
		&prefixed.TextFormatter{
			TimestampFormat:  time.RFC3339Nano,
			FullTimestamp:    true,
			DisableUppercase: true,
			ForceFormatting:  true,
		},
	))
}
