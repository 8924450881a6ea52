package logger

import (
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a configured logrus.Logger. Structured JSON output is used in
// deployed environments; local runs get the plain text formatter for
// readability.
func New(env string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(parseLevel(env))
	if isLocal(env) {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	}
	return log
}

func parseLevel(env string) logrus.Level {
	if isLocal(env) {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

func isLocal(env string) bool {
	env = strings.ToLower(env)
	return env == "local" || env == "dev"
}
