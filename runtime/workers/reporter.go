package workers

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatsSource exposes the live connection counters of the presence registry.
type StatsSource interface {
	Stats() (identities, connections int)
}

type NamedChannel struct {
	Name    string
	Channel any
}

// ReporterWorker periodically logs the server's own footprint next to presence counters.
type ReporterWorker struct {
	log      *slog.Logger
	source   StatsSource
	interval time.Duration
	channels []NamedChannel
}

func NewReporterWorker(log *slog.Logger, source StatsSource, interval time.Duration, channels ...NamedChannel) *ReporterWorker {
	return &ReporterWorker{log: log, source: source, interval: interval, channels: channels}
}

// Run reports until context cancellation
func (w *ReporterWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	startTime := time.Now()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.report(p, startTime)
			w.log.Debug("Reporter stopped")
			return nil
		case <-ticker.C:
			w.report(p, startTime)
		}
	}
}

func (w *ReporterWorker) report(p *process.Process, startTime time.Time) {
	identities, connections := w.source.Stats()
	attrs := []any{
		"uptime", time.Since(startTime).Round(time.Second).String(),
		"online_identities", identities,
		"connections", connections,
	}
	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Debug("Failed to collect self stats", "error", err)
	} else {
		attrs = append(attrs, "rss_mb", rss/1024/1024, "cpu_percent", cpu)
	}
	w.log.Info("Server stats", attrs...)

	// len and cap never block, a sample may be slightly stale
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		w.log.Debug("Channel capacity", "name", nc.Name, "length", v.Len(), "capacity", v.Cap())
	}
}

// selfStats retrieves memory and CPU usage for the given process.
func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
