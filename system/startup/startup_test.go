package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/smarthome-controller/internal/config"
	"github.com/thatsimonsguy/smarthome-controller/internal/env"
)

func intPtr(i int) *int { return &i }

func setupEnv(t *testing.T) string {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.ConfigFile = "/etc/smarthome/config.json"
	cfg.BootScriptFilePath = filepath.Join(dir, "gpio-init.sh")
	cfg.OSServicePath = filepath.Join(dir, "smarthome-gpio-init.service")
	cfg.MainServicePath = filepath.Join(dir, "smarthome-controller.service")
	cfg.GPIO = config.GPIO{
		FlameSensor: intPtr(27), LightSensor: intPtr(5),
		AlarmLED: intPtr(18), Buzzer: intPtr(23),
		LED1: intPtr(17), LED2: intPtr(22),
		Servo: intPtr(19), AuxLED: intPtr(6),
	}

	orig := env.Cfg
	env.Cfg = &cfg
	t.Cleanup(func() { env.Cfg = orig })
	return dir
}

func TestWriteStartupScript(t *testing.T) {
	setupEnv(t)
	require.NoError(t, WriteStartupScript())

	data, err := os.ReadFile(env.Cfg.BootScriptFilePath)
	require.NoError(t, err)
	script := string(data)

	assert.True(t, strings.HasPrefix(script, "#!/bin/bash\n"))
	for _, pin := range []string{"18", "23", "17", "22", "19", "6"} {
		assert.Contains(t, script, "pinctrl set "+pin+" op pn dl\n")
	}
	assert.Contains(t, script, "pinctrl set 27 ip pn\n")
	assert.Contains(t, script, "pinctrl set 5 ip pn\n")
	assert.Contains(t, script, "# buzzer\n")

	info, err := os.Stat(env.Cfg.BootScriptFilePath)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100, "script must be executable")
}

func TestWriteStartupScript_Deterministic(t *testing.T) {
	setupEnv(t)
	require.NoError(t, WriteStartupScript())
	first, _ := os.ReadFile(env.Cfg.BootScriptFilePath)
	require.NoError(t, WriteStartupScript())
	second, _ := os.ReadFile(env.Cfg.BootScriptFilePath)
	assert.Equal(t, string(first), string(second))
}

func TestInstallServices(t *testing.T) {
	setupEnv(t)
	require.NoError(t, InstallStartupService())
	require.NoError(t, InstallControllerService())

	unit, err := os.ReadFile(env.Cfg.OSServicePath)
	require.NoError(t, err)
	assert.Contains(t, string(unit), "ExecStart="+env.Cfg.BootScriptFilePath)

	controllerUnit, err := os.ReadFile(env.Cfg.MainServicePath)
	require.NoError(t, err)
	assert.Contains(t, string(controllerUnit), "Requires=smarthome-gpio-init.service")
	assert.Contains(t, string(controllerUnit), "ExecStart=/usr/local/bin/smarthome-controller -config-file /etc/smarthome/config.json")
	assert.Contains(t, string(controllerUnit), "User=pi")
}

func TestRunStartupScript(t *testing.T) {
	setupEnv(t)
	orig := runCommand
	defer func() { runCommand = orig }()

	var got []string
	runCommand = func(name string, args ...string) error {
		got = append([]string{name}, args...)
		return nil
	}

	require.NoError(t, RunStartupScript())
	assert.Equal(t, []string{"/bin/bash", env.Cfg.BootScriptFilePath}, got)
}
