package app

import (
	"go.uber.org/zap"

	"github.com/vnykmshr/ruginx/internal/server"
	"github.com/vnykmshr/ruginx/pkg/threadpool"
)

// reporter is the scheduled job that logs pool and connection counters.
type reporter struct {
	pool   interface{ Stats() threadpool.Stats }
	conns  interface{ Stats() server.Stats }
	logger *zap.Logger
}

func (r *reporter) Run() {
	ps := r.pool.Stats()
	cs := r.conns.Stats()

	r.logger.Info("stats",
		zap.Int("workers", ps.Workers),
		zap.Int("live_workers", ps.LiveWorkers),
		zap.Int("active_workers", ps.ActiveWorkers),
		zap.Int("queued", ps.Queued),
		zap.Int64("submitted", ps.Submitted),
		zap.Int64("completed", ps.Completed),
		zap.Int64("panicked", ps.Panicked),
		zap.Int64("accepted", cs.Accepted),
		zap.Int64("rejected", cs.Rejected),
		zap.Int64("served", cs.Served),
		zap.Int64("failed", cs.Failed),
	)
}
