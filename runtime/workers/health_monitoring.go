package workers

import (
	"context"
	"log/slog"
	"match-lab/observability"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples the server's own CPU and memory usage.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	pid            int32
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, pid: int32(os.Getpid()), metricInterval: metricInterval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(w.pid)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health sampling")
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *HealthMonitoringWorker) sample(p *process.Process) {
	cpu, err := p.CPUPercent()
	if err != nil {
		w.log.Error("Error while finding process cpu usage", "err", err)
		return
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		w.log.Error("Error while finding process ram usage", "err", err)
		return
	}
	observability.ProcessCPU.Set(cpu)
	observability.ProcessRSS.Set(float64(mem.RSS))
}
