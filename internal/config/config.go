package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BCM pins wired to the hardware PWM channels.
var hardwarePWMPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

type GPIO struct {
	// inputs
	FlameSensor *int `json:"flame_sensor"`
	LightSensor *int `json:"light_sensor"`

	// flame alarm outputs
	AlarmLED *int `json:"alarm_led"`
	Buzzer   *int `json:"buzzer"`

	// remote-controlled outputs
	LED1  *int `json:"led1"`
	LED2  *int `json:"led2"`
	Servo *int `json:"servo"`

	// light-controlled output
	AuxLED *int `json:"aux_led"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string
	SafeMode   bool
	// FakeHardware swaps the GPIO port for an in-memory one, for bench runs off the Pi.
	FakeHardware bool

	FirebaseURL string `json:"firebase_url"`

	// The DHT11 is read through the kernel dht11 overlay, so it has no pin here.
	DHTDevicePath string `json:"dht_device_path"`

	DoorOpenAngle       int `json:"door_open_angle"`
	DoorCloseAngle      int `json:"door_close_angle"`
	ServoStepDelayMS    int `json:"servo_step_delay_ms"`
	ServoPWMFrequencyHz int `json:"servo_pwm_frequency_hz"`

	SensorIntervalMS    int `json:"sensor_interval_ms"`
	ActuatorIntervalMS  int `json:"actuator_interval_ms"`
	FlameIdleIntervalMS int `json:"flame_idle_interval_ms"`
	AlarmHalfPeriodMS   int `json:"alarm_half_period_ms"`

	SensorTimeoutMS     int `json:"sensor_timeout_ms"`
	RemoteTimeoutMS     int `json:"remote_timeout_ms"`
	RemoteRetries       int `json:"remote_retries"`
	BreakerMaxFailures  int `json:"breaker_max_failures"`
	BreakerResetSeconds int `json:"breaker_reset_seconds"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyServer string `json:"ntfy_server"`
	NtfyTopic  string `json:"ntfy_topic"`

	MQTTBroker      string `json:"mqtt_broker"`
	MQTTTopicPrefix string `json:"mqtt_topic_prefix"`

	APIPort int `json:"api_port"`

	BootScriptFilePath string `json:"boot_script_file_path"`
	OSServicePath      string `json:"os_service_path"`
	MainServicePath    string `json:"main_service_path"`
	ServiceUser        string `json:"service_user"`
	ServiceWorkDir     string `json:"service_work_dir"`
	ServiceExecPath    string `json:"service_exec_path"`

	GPIO GPIO `json:"gpio"`
}

// Defaults mirror the reference wiring (door angles 33/67, 2s sensor ticks, 0.5s actuator ticks).
func Defaults() Config {
	return Config{
		LogLevel:            zerolog.InfoLevel,
		DHTDevicePath:       "/sys/bus/iio/devices/iio:device0",
		DoorOpenAngle:       33,
		DoorCloseAngle:      67,
		ServoStepDelayMS:    10,
		ServoPWMFrequencyHz: 50,
		SensorIntervalMS:    2000,
		ActuatorIntervalMS:  500,
		FlameIdleIntervalMS: 100,
		AlarmHalfPeriodMS:   500,
		SensorTimeoutMS:     2000,
		RemoteTimeoutMS:     3000,
		RemoteRetries:       1,
		BreakerMaxFailures:  5,
		BreakerResetSeconds: 30,
		DDAgentAddr:         "127.0.0.1:8125",
		DDNamespace:         "smarthome.",
		NtfyServer:          "https://ntfy.sh",
		MQTTTopicPrefix:     "smarthome",
		APIPort:             8080,
		BootScriptFilePath:  "/usr/local/bin/smarthome-gpio-init.sh",
		OSServicePath:       "/etc/systemd/system/smarthome-gpio-init.service",
		MainServicePath:     "/etc/systemd/system/smarthome-controller.service",
		ServiceUser:         "pi",
		ServiceWorkDir:      "/home/pi/smarthome-controller",
		ServiceExecPath:     "/usr/local/bin/smarthome-controller",
	}
}

func Load() Config {
	var configFile, logLevel, logFile string
	var safeMode, fakeHardware bool

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "/var/log/smarthome-controller.log", "Path to log file (empty for console only)")
	flag.BoolVar(&safeMode, "safe-mode", false, "Disable all GPIO writes")
	flag.BoolVar(&fakeHardware, "fake-hardware", false, "Run against an in-memory GPIO port")
	flag.Parse()

	cfg := LoadFile(configFile)
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.LogFile = logFile
	cfg.SafeMode = safeMode
	cfg.FakeHardware = fakeHardware
	return cfg
}

// LoadFile reads and validates a config file without touching command-line flags.
func LoadFile(path string) Config {
	file, err := os.Open(path)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		panic("Failed to parse config file: " + err.Error())
	}
	cfg.ConfigFile = path

	cfg.validate()
	return cfg
}

// Parse decodes a JSON config on top of Defaults. It does not validate.
func Parse(r io.Reader) (Config, error) {
	cfg := Defaults()
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
		problems      []string
	)

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			missingFields = append(missingFields, "gpio."+fieldName)
			continue
		}

		pin := int(field.Elem().Int())
		if other, exists := usedPins[pin]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[pin] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}

	if !hardwarePWMPins[*cfg.GPIO.Servo] {
		problems = append(problems, fmt.Sprintf("gpio.servo pin %d has no hardware PWM channel (use 12, 13, 18 or 19)", *cfg.GPIO.Servo))
	}
	type setting struct {
		name  string
		value int
	}
	for _, a := range []setting{
		{"door_open_angle", cfg.DoorOpenAngle},
		{"door_close_angle", cfg.DoorCloseAngle},
	} {
		if a.value < 0 || a.value > 180 {
			problems = append(problems, fmt.Sprintf("%s must be within 0..180, got %d", a.name, a.value))
		}
	}
	for _, p := range []setting{
		{"sensor_interval_ms", cfg.SensorIntervalMS},
		{"actuator_interval_ms", cfg.ActuatorIntervalMS},
		{"flame_idle_interval_ms", cfg.FlameIdleIntervalMS},
		{"alarm_half_period_ms", cfg.AlarmHalfPeriodMS},
		{"servo_pwm_frequency_hz", cfg.ServoPWMFrequencyHz},
	} {
		if p.value <= 0 {
			problems = append(problems, p.name+" must be positive")
		}
	}
	if cfg.RemoteRetries < 0 {
		problems = append(problems, "remote_retries must not be negative")
	}

	if len(problems) > 0 {
		panic("Invalid config: " + strings.Join(problems, "; "))
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func (cfg *Config) ServoStepDelay() time.Duration   { return ms(cfg.ServoStepDelayMS) }
func (cfg *Config) SensorInterval() time.Duration   { return ms(cfg.SensorIntervalMS) }
func (cfg *Config) ActuatorInterval() time.Duration { return ms(cfg.ActuatorIntervalMS) }
func (cfg *Config) FlameIdleInterval() time.Duration {
	return ms(cfg.FlameIdleIntervalMS)
}
func (cfg *Config) AlarmHalfPeriod() time.Duration { return ms(cfg.AlarmHalfPeriodMS) }
func (cfg *Config) SensorTimeout() time.Duration   { return ms(cfg.SensorTimeoutMS) }
func (cfg *Config) RemoteTimeout() time.Duration   { return ms(cfg.RemoteTimeoutMS) }
func (cfg *Config) BreakerReset() time.Duration {
	return time.Duration(cfg.BreakerResetSeconds) * time.Second
}

// OutputPins lists every line the controller drives, keyed by config name.
func (cfg *Config) OutputPins() map[string]int {
	return map[string]int{
		"alarm_led": *cfg.GPIO.AlarmLED,
		"buzzer":    *cfg.GPIO.Buzzer,
		"led1":      *cfg.GPIO.LED1,
		"led2":      *cfg.GPIO.LED2,
		"aux_led":   *cfg.GPIO.AuxLED,
		"servo":     *cfg.GPIO.Servo,
	}
}

func (cfg *Config) InputPins() map[string]int {
	return map[string]int{
		"flame_sensor": *cfg.GPIO.FlameSensor,
		"light_sensor": *cfg.GPIO.LightSensor,
	}
}
