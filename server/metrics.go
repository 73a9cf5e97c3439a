package server

import (
	gometrics "github.com/docker/go-metrics"

	"github.com/keldcache/keld/internal/metrics"
)

var (
	// sessionsGauge tracks the number of sessions currently being served.
	sessionsGauge = metrics.ServerNamespace.NewGauge("sessions", "number of live client sessions", gometrics.Total)

	// commandsCounter counts processed commands by command name.
	commandsCounter = metrics.ServerNamespace.NewLabeledCounter("commands", "number of commands processed", "command")

	// decodeErrorsCounter counts non-fatal protocol errors reported back
	// to clients.
	decodeErrorsCounter = metrics.ServerNamespace.NewCounter("decode_errors", "number of protocol errors answered with an error reply")

	// acceptErrorsCounter counts failed accept calls.
	acceptErrorsCounter = metrics.ServerNamespace.NewCounter("accept_errors", "number of failed accepts")

	// entriesGauge tracks the approximate number of entries in storage.
	entriesGauge = metrics.StorageNamespace.NewGauge("entries", "approximate number of entries held", gometrics.Total)
)

func init() {
	gometrics.Register(metrics.ServerNamespace)
	gometrics.Register(metrics.StorageNamespace)
}
