package probes

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"hostmend/internal/schema"
)

// processInfo is the slice of process state this probe cares about.
type processInfo struct {
	PID        int32
	Name       string
	CPUPercent float64
}

// ProcessProbe watches a fixed list of critical processes. A missing
// process emits process_missing; a process observed at zero CPU after
// a prior observation emits process_frozen.
type ProcessProbe struct {
	sink     Sink
	observer ErrorObserver
	interval time.Duration
	watched  []string

	// list is swappable in tests.
	list func() ([]processInfo, error)

	// seen tracks processes observed on a previous check, so the first
	// sighting of an idle process is not reported as frozen.
	seen map[string]bool
}

// ProcessProbeConfig configures a ProcessProbe.
type ProcessProbeConfig struct {
	Interval  time.Duration
	Processes []string
}

// NewProcessProbe creates a critical-process probe.
func NewProcessProbe(sink Sink, cfg ProcessProbeConfig, observer ErrorObserver) *ProcessProbe {
	if observer == nil {
		observer = nopObserver{}
	}
	return &ProcessProbe{
		sink:     sink,
		observer: observer,
		interval: cfg.Interval,
		watched:  cfg.Processes,
		list:     listProcesses,
		seen:     make(map[string]bool),
	}
}

// listProcesses reads the live process table through gopsutil.
func listProcesses() ([]processInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	out := make([]processInfo, 0, len(procs))
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		cpu, err := p.CPUPercent()
		if err != nil {
			cpu = 0
		}
		out = append(out, processInfo{PID: p.Pid, Name: name, CPUPercent: cpu})
	}
	return out, nil
}

// Name implements Probe.
func (p *ProcessProbe) Name() string { return "process" }

// Interval implements Probe.
func (p *ProcessProbe) Interval() time.Duration { return p.interval }

// Check inspects every watched process once.
func (p *ProcessProbe) Check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	procs, err := p.list()
	if err != nil {
		slog.Error("process probe failed", "error", err)
		p.observer.ObserveProbeError(p.Name())
		return
	}

	byName := make(map[string][]processInfo)
	for _, info := range procs {
		key := strings.ToLower(info.Name)
		byName[key] = append(byName[key], info)
	}

	for _, name := range p.watched {
		key := strings.ToLower(name)
		matches := byName[key]

		if len(matches) == 0 {
			emit(p.sink, schema.New(schema.TypeProcessMissing, "process_probe", 5, map[string]any{
				"process_name": name,
			}))
			delete(p.seen, key)
			continue
		}

		for _, info := range matches {
			if info.CPUPercent == 0 && p.seen[key] {
				emit(p.sink, schema.New(schema.TypeProcessFrozen, "process_probe", 4, map[string]any{
					"process_name": name,
					"pid":          int(info.PID),
				}))
			}
		}
		p.seen[key] = true
	}
}
