package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"atelier-chat/contract"
	"atelier-chat/observability"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker periodically logs delivery counters together with the
// process's own memory and CPU footprint.
type HeartbeatWorker struct {
	log        *slog.Logger
	monitoring *observability.Manager
	interval   time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, monitoring *observability.Manager, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, monitoring: monitoring, interval: interval}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			stats := w.monitoring.Snapshot()

			var rssMb uint64
			if mem, err := p.MemoryInfo(); err == nil {
				rssMb = mem.RSS / (1024 * 1024)
			}
			cpu, _ := p.CPUPercent()

			w.log.Info("heartbeat",
				"connections_open", stats.ConnectionsOpen,
				"rooms_active", stats.RoomsActive,
				"messages_persisted", stats.MessagesPersisted,
				"messages_delivered", stats.MessagesDelivered,
				"messages_dropped", stats.MessagesDropped,
				"rss_mb", rssMb,
				"cpu_percent", cpu,
			)
		}
	}
}
