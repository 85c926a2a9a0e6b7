// Package telemetry provides structured logging, a per-document
// step tracer, and the process's Prometheus collectors.
package telemetry

import "go.uber.org/zap"

// NewLogger builds the process-wide zap logger. Production mode uses
// JSON encoding; development mode uses the human-readable console
// encoder, matching the common zap.NewProduction/zap.NewDevelopment
// split. The caller chooses the mode (cmd/server picks development
// whenever GIN_MODE is not "release").
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
