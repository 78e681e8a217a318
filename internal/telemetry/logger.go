// Package telemetry wires the ambient structured logging, metrics, and
// tracing stack shared across the motion core.
package telemetry

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the logrus logger used throughout the core. JSON
// formatting in production, a human-readable text formatter in
// development, matching the teacher's logger setup.
func NewLogger(development bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	if development {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}
