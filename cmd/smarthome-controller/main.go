package main

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/thatsimonsguy/smarthome-controller/internal/api"
	"github.com/thatsimonsguy/smarthome-controller/internal/breaker"
	"github.com/thatsimonsguy/smarthome-controller/internal/config"
	"github.com/thatsimonsguy/smarthome-controller/internal/controllers/actuatorcontroller"
	"github.com/thatsimonsguy/smarthome-controller/internal/controllers/flamecontroller"
	"github.com/thatsimonsguy/smarthome-controller/internal/controllers/sensorcontroller"
	"github.com/thatsimonsguy/smarthome-controller/internal/datadog"
	"github.com/thatsimonsguy/smarthome-controller/internal/door"
	"github.com/thatsimonsguy/smarthome-controller/internal/env"
	"github.com/thatsimonsguy/smarthome-controller/internal/events"
	"github.com/thatsimonsguy/smarthome-controller/internal/firebase"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/logging"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/notifications"
	"github.com/thatsimonsguy/smarthome-controller/internal/scheduler"
	"github.com/thatsimonsguy/smarthome-controller/internal/sensors"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
	"github.com/thatsimonsguy/smarthome-controller/system/shutdown"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("firebase_url", cfg.FirebaseURL).
		Msg("Starting smart home controller")

	datadog.InitMetrics()
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED - GPIO writes are disabled system-wide")
	}

	port, err := openPort(&cfg)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open GPIO port")
		return
	}
	env.Port = port

	remoteBreaker := breaker.New("firebase", breaker.Config{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerReset(),
	})
	store := openStore(&cfg, remoteBreaker)

	var publisher *events.Publisher
	if cfg.MQTTBroker != "" {
		publisher, err = events.Connect(cfg.MQTTBroker, cfg.MQTTTopicPrefix)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT unavailable - events will not be published")
			publisher = nil
		}
	}

	env.Status = state.NewStatus(model.DoorState{AngleDeg: cfg.DoorCloseAngle})
	doorCtl := door.NewController(port, door.Config{
		OpenAngle:  cfg.DoorOpenAngle,
		CloseAngle: cfg.DoorCloseAngle,
		StepDelay:  cfg.ServoStepDelay(),
	}, env.Status, publisher)

	sweep := doorCtl.MaxSweepDuration()
	log.Info().
		Dur("max_sweep", sweep).
		Dur("actuator_interval", cfg.ActuatorInterval()).
		Msg("Door sweep timing")
	if sweep > cfg.ActuatorInterval() {
		log.Warn().Msg("A full door sweep outlasts the actuator interval; ticks will be dropped while the door moves")
	}

	reader := sensors.NewReader(port, *cfg.GPIO.FlameSensor, *cfg.GPIO.LightSensor, cfg.DHTDevicePath, cfg.SensorTimeout())

	flameDeps := flamecontroller.Deps{
		Sensor:       reader,
		Port:         port,
		Store:        store,
		AlarmLEDPin:  *cfg.GPIO.AlarmLED,
		BuzzerPin:    *cfg.GPIO.Buzzer,
		IdleInterval: cfg.FlameIdleInterval(),
		HalfPeriod:   cfg.AlarmHalfPeriod(),
		Status:       env.Status,
		Events:       publisher,
	}
	if notifier := notifications.New(cfg.NtfyServer, cfg.NtfyTopic); notifier != nil {
		flameDeps.Notifier = notifier
	}

	loops := []scheduler.Loop{
		sensorcontroller.New(sensorcontroller.Deps{
			Reader:    reader,
			Port:      port,
			Store:     store,
			AuxLEDPin: *cfg.GPIO.AuxLED,
			Interval:  cfg.SensorInterval(),
			Status:    env.Status,
			Events:    publisher,
		}),
		actuatorcontroller.New(actuatorcontroller.Deps{
			Port:     port,
			Store:    store,
			Door:     doorCtl,
			LED1Pin:  *cfg.GPIO.LED1,
			LED2Pin:  *cfg.GPIO.LED2,
			Interval: cfg.ActuatorInterval(),
			Status:   env.Status,
		}),
		flamecontroller.New(flameDeps),
	}
	if cfg.APIPort > 0 {
		loops = append(loops, api.NewServer(env.Status, func() string { return remoteBreaker.State().String() }, cfg.APIPort))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = scheduler.Run(ctx, loops...)
	stop()
	if perr := doorCtl.Park(); perr != nil {
		log.Warn().Err(perr).Msg("Failed to park door servo")
	}
	publisher.Close()

	if err != nil {
		shutdown.ShutdownWithError(err, "Controller loop failed")
		return
	}
	log.Info().Msg("Shutdown signal received, loops finished")
	shutdown.Shutdown()
}

// writes kept by the in-memory port in -fake-hardware mode
const benchHistory = 256

func openPort(cfg *config.Config) (gpio.Port, error) {
	if cfg.FakeHardware {
		log.Warn().Msg("Using in-memory GPIO port; no hardware will be touched")
		fake := gpio.NewFakePort()
		fake.MaxHistory = benchHistory
		// idle sensor levels: no flame (HIGH), daylight (HIGH)
		fake.SetLevel(*cfg.GPIO.FlameSensor, model.High)
		fake.SetLevel(*cfg.GPIO.LightSensor, model.High)
		return fake, nil
	}

	outputs := cfg.OutputPins()
	if err := gpio.ValidateStartupPins(outputs); err != nil {
		log.Warn().Err(err).Msg("Unexpected pin state at startup; outputs will be driven LOW")
	}

	port, err := gpio.Open(gpio.PortConfig{
		Inputs:           pinList(cfg.InputPins(), ""),
		Outputs:          pinList(outputs, "servo"),
		ServoPin:         *cfg.GPIO.Servo,
		ServoFrequencyHz: cfg.ServoPWMFrequencyHz,
		SafeMode:         cfg.SafeMode,
	})
	if err != nil {
		return nil, err
	}
	return port, nil
}

func openStore(cfg *config.Config, b *gobreaker.CircuitBreaker) firebase.Store {
	if cfg.FirebaseURL == "" {
		log.Warn().Msg("No firebase_url configured - using in-memory store")
		return firebase.NewMemoryStore()
	}
	return firebase.NewClient(cfg.FirebaseURL, firebase.Options{
		Timeout: cfg.RemoteTimeout(),
		Retries: cfg.RemoteRetries,
		Breaker: b,
	})
}

func pinList(pins map[string]int, skip string) []int {
	out := make([]int, 0, len(pins))
	for name, pin := range pins {
		if name == skip {
			continue
		}
		out = append(out, pin)
	}
	sort.Ints(out)
	return out
}
