package klog

import (
	"log/slog"

	zapslog "github.com/tommoulard/zap-slog"
	"go.uber.org/zap"
)

// NewTracer returns a zap logger whose output goes through logger, so
// trace lines carry the same sequence numbers and end up in the same
// stream as everything else.
func NewTracer(logger *slog.Logger) (*zap.Logger, error) {
	return zap.NewProduction(zapslog.WrapCore(logger))
}
