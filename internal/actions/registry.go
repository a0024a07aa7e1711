// Package actions provides the built-in remediation actions and the
// registry that pattern files resolve them through.
package actions

import (
	"fmt"
	"time"

	"hostmend/internal/engine"
)

// Config adjusts the built-in actions.
type Config struct {
	// TempMaxAge is the minimum age before a temp file is purged.
	TempMaxAge time.Duration
	// RestartCommands maps a process name to the command line used to
	// start it again after a kill, e.g. "explorer.exe" -> ["explorer.exe"].
	RestartCommands map[string][]string
}

// DefaultConfig returns the built-in action defaults.
func DefaultConfig() Config {
	return Config{
		TempMaxAge: 24 * time.Hour,
	}
}

// DefaultRegistry builds the registry of shipped actions:
//
//	network.reconnect  – cycle the host's primary network connection
//	process.restart    – kill and relaunch a process by name
//	temp.purge         – delete stale files from the temp directory
func DefaultRegistry(cfg Config) engine.ActionRegistry {
	return engine.ActionRegistry{
		"network.reconnect": func(params map[string]any) (engine.ActionFunc, error) {
			iface := stringParam(params, "interface")
			return func() error {
				return ReconnectNetwork(iface)
			}, nil
		},
		"process.restart": func(params map[string]any) (engine.ActionFunc, error) {
			name := stringParam(params, "process_name")
			if name == "" {
				return nil, fmt.Errorf("process_name param is required")
			}
			command := cfg.RestartCommands[name]
			if len(command) == 0 {
				command = []string{name}
			}
			return func() error {
				return RestartProcess(name, command)
			}, nil
		},
		"temp.purge": func(params map[string]any) (engine.ActionFunc, error) {
			maxAge := cfg.TempMaxAge
			if maxAge <= 0 {
				maxAge = 24 * time.Hour
			}
			return func() error {
				_, err := PurgeTempFiles(maxAge)
				return err
			}, nil
		},
	}
}

func stringParam(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if s, ok := params[key].(string); ok {
		return s
	}
	return ""
}
