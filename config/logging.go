package config

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// SetupLogger configures a logrus logger from the pipeline section. When a log
// file is set, output goes to stderr and a rotating file. The returned cleanup
// closes the file.
func SetupLogger(p Pipeline) (*logrus.Logger, func() error, error) {
	return setupLogger(p, os.Stderr)
}

func setupLogger(p Pipeline, stderr io.Writer) (*logrus.Logger, func() error, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if p.LogLevel != "" {
		l, err := logrus.ParseLevel(p.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		level = l
	}
	log.SetLevel(level)

	if p.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	cleanup := func() error { return nil }
	out := stderr
	if p.LogFile != "" {
		rot := &lumberjack.Logger{
			Filename:   p.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(stderr, rot)
		cleanup = rot.Close
	}
	log.SetOutput(out)

	return log, cleanup, nil
}
