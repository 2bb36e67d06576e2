package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int {
	return &i
}

func validGPIO() GPIO {
	return GPIO{
		FlameSensor: intPtr(27),
		LightSensor: intPtr(5),
		AlarmLED:    intPtr(18),
		Buzzer:      intPtr(23),
		LED1:        intPtr(17),
		LED2:        intPtr(22),
		Servo:       intPtr(19),
		AuxLED:      intPtr(6),
	}
}

func TestValidate_GPIOValid(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()

	cfg.validate() // should not panic
}

func TestValidate_GPIO_Missing(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()
	cfg.GPIO.Buzzer = nil

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic due to missing GPIO config, but got none")
		}
		assert.Contains(t, r, "gpio.buzzer")
	}()

	cfg.validate()
}

func TestValidate_GPIO_Conflict(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()
	cfg.GPIO.LED2 = intPtr(17) // same as led1

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic due to conflicting pin numbers, but got none")
		}
	}()

	cfg.validate()
}

func TestValidate_ServoNeedsHardwarePWM(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()
	cfg.GPIO.Servo = intPtr(21)

	assert.PanicsWithValue(t,
		"Invalid config: gpio.servo pin 21 has no hardware PWM channel (use 12, 13, 18 or 19)",
		func() { cfg.validate() })
}

func TestValidate_AngleOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()
	cfg.DoorOpenAngle = 200

	assert.Panics(t, func() { cfg.validate() })
}

func TestValidate_ProblemsReportedInFixedOrder(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()
	cfg.DoorOpenAngle = 200
	cfg.DoorCloseAngle = -1
	cfg.SensorIntervalMS = 0
	cfg.AlarmHalfPeriodMS = 0

	want := "Invalid config: " +
		"door_open_angle must be within 0..180, got 200; " +
		"door_close_angle must be within 0..180, got -1; " +
		"sensor_interval_ms must be positive; " +
		"alarm_half_period_ms must be positive"
	for i := 0; i < 5; i++ {
		assert.PanicsWithValue(t, want, func() { cfg.validate() })
	}
}

func TestParse_AppliesDefaultsUnderFileValues(t *testing.T) {
	raw := `{
		"firebase_url": "https://example-default-rtdb.firebaseio.com/",
		"door_open_angle": 0,
		"actuator_interval_ms": 750,
		"gpio": {"led1": 17}
	}`

	cfg, err := Parse(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, "https://example-default-rtdb.firebaseio.com/", cfg.FirebaseURL)
	assert.Equal(t, 0, cfg.DoorOpenAngle, "explicit zero angle must survive defaults")
	assert.Equal(t, 67, cfg.DoorCloseAngle)
	assert.Equal(t, 750, cfg.ActuatorIntervalMS)
	assert.Equal(t, 2000, cfg.SensorIntervalMS)
	require.NotNil(t, cfg.GPIO.LED1)
	assert.Equal(t, 17, *cfg.GPIO.LED1)
	assert.Nil(t, cfg.GPIO.LED2)
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse(strings.NewReader("{not json"))
	assert.Error(t, err)
}

func TestOutputAndInputPins(t *testing.T) {
	cfg := Defaults()
	cfg.GPIO = validGPIO()

	out := cfg.OutputPins()
	assert.Len(t, out, 6)
	assert.Equal(t, 19, out["servo"])
	assert.Equal(t, map[string]int{"flame_sensor": 27, "light_sensor": 5}, cfg.InputPins())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	contents := `{
		"firebase_url": "https://home-1234.firebaseio.com",
		"gpio": {"flame_sensor": 27, "light_sensor": 5, "alarm_led": 18, "buzzer": 23,
		         "led1": 17, "led2": 22, "servo": 19, "aux_led": 6}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))

	cfg := LoadFile(path)
	assert.Equal(t, path, cfg.ConfigFile)
	assert.Equal(t, "https://home-1234.firebaseio.com", cfg.FirebaseURL)
	assert.Equal(t, 19, *cfg.GPIO.Servo)
	assert.Equal(t, 33, cfg.DoorOpenAngle)

	assert.Panics(t, func() { LoadFile(filepath.Join(t.TempDir(), "missing.json")) })
}
