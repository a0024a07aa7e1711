package probes

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/disk"

	"hostmend/internal/schema"
)

// DiskProbe watches the usage of one filesystem path (by default the
// temp directory's volume) and emits disk_space_low while usage stays
// at or above the configured percentage. The bound pattern's cooldown
// keeps repeated emissions from re-triggering remediation.
type DiskProbe struct {
	sink      Sink
	observer  ErrorObserver
	interval  time.Duration
	path      string
	threshold float64

	// usage is swappable in tests.
	usage func(path string) (float64, error)
}

// DiskProbeConfig configures a DiskProbe.
type DiskProbeConfig struct {
	Interval    time.Duration
	Path        string
	UsedPercent float64
}

// NewDiskProbe creates a disk-pressure probe.
func NewDiskProbe(sink Sink, cfg DiskProbeConfig, observer ErrorObserver) *DiskProbe {
	if observer == nil {
		observer = nopObserver{}
	}
	return &DiskProbe{
		sink:      sink,
		observer:  observer,
		interval:  cfg.Interval,
		path:      cfg.Path,
		threshold: cfg.UsedPercent,
		usage: func(path string) (float64, error) {
			stat, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return stat.UsedPercent, nil
		},
	}
}

// Name implements Probe.
func (p *DiskProbe) Name() string { return "disk" }

// Interval implements Probe.
func (p *DiskProbe) Interval() time.Duration { return p.interval }

// Check samples the filesystem usage once.
func (p *DiskProbe) Check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	used, err := p.usage(p.path)
	if err != nil {
		slog.Error("disk probe failed", "path", p.path, "error", err)
		p.observer.ObserveProbeError(p.Name())
		return
	}

	if used >= p.threshold {
		emit(p.sink, schema.New(schema.TypeDiskSpaceLow, "disk_probe", 2, map[string]any{
			"path":         p.path,
			"used_percent": used,
		}))
	}
}
