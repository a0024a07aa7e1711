package probes

import (
	"context"
	"net"
	"time"

	"hostmend/internal/schema"
)

// NetworkProbe checks internet reachability by dialing a well-known
// address. It emits a network_disconnect event on each up-to-down
// transition.
type NetworkProbe struct {
	sink     Sink
	observer ErrorObserver
	interval time.Duration
	address  string
	timeout  time.Duration

	// dial is swappable in tests.
	dial func(address string, timeout time.Duration) error

	connected       bool
	disconnectCount int
}

// NetworkProbeConfig configures a NetworkProbe.
type NetworkProbeConfig struct {
	Interval    time.Duration
	Address     string
	DialTimeout time.Duration
}

// NewNetworkProbe creates a reachability probe.
func NewNetworkProbe(sink Sink, cfg NetworkProbeConfig, observer ErrorObserver) *NetworkProbe {
	if observer == nil {
		observer = nopObserver{}
	}
	return &NetworkProbe{
		sink:     sink,
		observer: observer,
		interval: cfg.Interval,
		address:  cfg.Address,
		timeout:  cfg.DialTimeout,
		dial: func(address string, timeout time.Duration) error {
			conn, err := net.DialTimeout("tcp", address, timeout)
			if err != nil {
				return err
			}
			return conn.Close()
		},
		connected: true, // assume up until the first check says otherwise
	}
}

// Name implements Probe.
func (p *NetworkProbe) Name() string { return "network" }

// Interval implements Probe.
func (p *NetworkProbe) Interval() time.Duration { return p.interval }

// Check dials the probe address once and records the transition.
func (p *NetworkProbe) Check(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	up := p.dial(p.address, p.timeout) == nil

	if !up && p.connected {
		p.disconnectCount++
		emit(p.sink, schema.New(schema.TypeNetworkDisconnect, "network_probe", 3, map[string]any{
			"disconnect_count": p.disconnectCount,
			"address":          p.address,
		}))
	}
	p.connected = up
}
