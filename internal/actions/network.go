package actions

import (
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
)

// ReconnectNetwork cycles the host's network connection: disconnect,
// brief pause, reconnect. The command set depends on the platform; the
// interface name is optional and platform-specific (e.g. "wlan0" on
// Linux, "Wi-Fi" on macOS).
func ReconnectNetwork(iface string) error {
	if runtime.GOOS == "windows" && iface == "" {
		profile, err := firstWlanProfile()
		if err != nil {
			return err
		}
		iface = profile
	}

	down, up, err := reconnectCommands(runtime.GOOS, iface)
	if err != nil {
		return err
	}

	if err := runCommand(down); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	time.Sleep(2 * time.Second)

	r := retry.New(
		retry.Attempts(3),
		retry.Delay(2*time.Second),
	)
	if err := r.Do(func() error {
		return runCommand(up)
	}); err != nil {
		return fmt.Errorf("reconnect: %w", err)
	}

	slog.Info("network reconnected", "interface", iface)
	return nil
}

// reconnectCommands returns the disconnect and reconnect command lines
// for the given platform.
func reconnectCommands(goos, iface string) (down, up []string, err error) {
	switch goos {
	case "linux":
		if iface == "" {
			iface = "wlan0"
		}
		return []string{"nmcli", "device", "disconnect", iface},
			[]string{"nmcli", "device", "connect", iface}, nil
	case "darwin":
		if iface == "" {
			iface = "Wi-Fi"
		}
		return []string{"networksetup", "-setnetworkserviceenabled", iface, "off"},
			[]string{"networksetup", "-setnetworkserviceenabled", iface, "on"}, nil
	case "windows":
		return []string{"netsh", "wlan", "disconnect"},
			[]string{"netsh", "wlan", "connect", "name=" + iface}, nil
	default:
		return nil, nil, fmt.Errorf("network reconnect not supported on %s", goos)
	}
}

// wlanProfilePattern extracts saved Wi-Fi profile names from
// `netsh wlan show profiles` output, in English or French locales.
var wlanProfilePattern = regexp.MustCompile(`(?:All User Profile|Profil Tous les utilisateurs)\s*:\s*(.+)`)

// firstWlanProfile returns the first saved Wi-Fi profile on Windows.
func firstWlanProfile() (string, error) {
	out, err := exec.Command("netsh", "wlan", "show", "profiles").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("list wlan profiles: %w", err)
	}
	m := wlanProfilePattern.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("no saved wlan profiles found")
	}
	return strings.TrimSpace(string(m[1])), nil
}

func runCommand(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w (output: %s)", argv[0], err, out)
	}
	return nil
}
