// Package logging initializes the process-wide logrus logger used by
// every bot binary, in the style of kubernetes-sigs-prow's
// prow/logrusutil (JSON formatter plus a per-run correlation id).
// Full secret-censoring formatters are out of scope: no credentials
// flow through bot logs beyond what --config-path already guards.
package logging

import (
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Init configures the standard logrus logger for a bot process and
// returns a *logrus.Entry carrying the process's run id and component
// name, the base every other log line in the process should build on.
func Init(component string, debug bool) *logrus.Entry {
	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	logrus.SetOutput(os.Stderr)
	level := logrus.InfoLevel
	if debug {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	return logrus.WithFields(logrus.Fields{
		"component": component,
		"run_id":    uuid.NewString(),
	})
}
