package startup

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/thatsimonsguy/smarthome-controller/internal/env"
)

// WriteStartupScript writes a pinctrl script that puts every controller line into a
// safe state at boot: outputs driven LOW, sensor inputs without pulls.
func WriteStartupScript() error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Smart home GPIO pin configuration at boot", "")

	write := func(label string, pin int, opts string) {
		lines = append(lines, fmt.Sprintf("# %s", label))
		lines = append(lines, fmt.Sprintf("pinctrl set %d %s", pin, opts))
		lines = append(lines, "")
	}

	outputs := env.Cfg.OutputPins()
	for _, name := range sortedKeys(outputs) {
		write(name, outputs[name], "op pn dl")
	}
	inputs := env.Cfg.InputPins()
	for _, name := range sortedKeys(inputs) {
		write(name, inputs[name], "ip pn")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(env.Cfg.BootScriptFilePath, []byte(contents), 0755)
}

func InstallStartupService() error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Configure smart home GPIO pins at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, env.Cfg.BootScriptFilePath)

	return os.WriteFile(env.Cfg.OSServicePath, []byte(unitContents), 0644)
}

// InstallControllerService writes the main unit, ordered after the pin init unit.
func InstallControllerService() error {
	gpioUnitName := filepath.Base(env.Cfg.OSServicePath)
	execCmd := fmt.Sprintf("%s -config-file %s", env.Cfg.ServiceExecPath, env.Cfg.ConfigFile)

	unit := fmt.Sprintf(`[Unit]
Description=Smart home controller
After=%s network-online.target
Requires=%s
Wants=network-online.target

[Service]
Type=simple
User=%s
WorkingDirectory=%s
ExecStart=%s
KillSignal=SIGTERM
TimeoutStopSec=10s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, gpioUnitName, gpioUnitName, env.Cfg.ServiceUser, env.Cfg.ServiceWorkDir, execCmd)

	return os.WriteFile(env.Cfg.MainServicePath, []byte(unit), 0644)
}

var runCommand = func(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func RunStartupScript() error {
	return runCommand("/bin/bash", env.Cfg.BootScriptFilePath)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
