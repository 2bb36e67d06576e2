package sensorcontroller

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/smarthome-controller/internal/datadog"
	"github.com/thatsimonsguy/smarthome-controller/internal/events"
	"github.com/thatsimonsguy/smarthome-controller/internal/firebase"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
)

type SensorReader interface {
	Read() (model.SensorReading, error)
}

type Deps struct {
	Reader    SensorReader
	Port      gpio.Port
	Store     firebase.Store
	AuxLEDPin int
	Interval  time.Duration
	Status    *state.Status
	Events    *events.Publisher
}

// Controller mirrors sensor readings to the remote store and drives the night light.
type Controller struct {
	Deps
}

func New(deps Deps) *Controller {
	return &Controller{Deps: deps}
}

func (c *Controller) Name() string { return "sensor" }

// Run samples every Interval until ctx is cancelled. Only hardware loss ends it early.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Dur("interval", c.Interval).Msg("Starting sensor controller")

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		if err := c.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Sensor controller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	reading, err := c.Reader.Read()
	if err != nil {
		if errors.Is(err, gpio.ErrHardwareLost) {
			return err
		}
		log.Error().Err(err).Msg("Failed to read sensors")
		return nil
	}

	if reading.HasClimate() {
		log.Info().
			Float64("temperature_c", *reading.TemperatureC).
			Float64("humidity_pct", *reading.HumidityPct).
			Str("flame_status", model.FlameStatus(reading.FlameDetected)).
			Msgf("Temperature: %.1f°C, Humidity: %.1f%%, Flame Status: %s",
				*reading.TemperatureC, *reading.HumidityPct, model.FlameStatus(reading.FlameDetected))

		if err := c.Store.Patch(ctx, "/", TelemetryDocument(reading)); err != nil {
			log.Error().Err(err).Msg("Failed to write telemetry to remote store")
		}
		datadog.Gauge("sensor.temperature_c", *reading.TemperatureC)
		datadog.Gauge("sensor.humidity_pct", *reading.HumidityPct)
	} else {
		log.Warn().Msg("Failed to retrieve DHT11 sensor data")
		datadog.Incr("sensor.dht_read_failure")
	}

	auxOn := AuxLEDOn(reading)
	if err := c.Port.WriteDigital(c.AuxLEDPin, model.LevelFor(auxOn)); err != nil {
		if errors.Is(err, gpio.ErrHardwareLost) {
			return err
		}
		log.Error().Err(err).Int("pin", c.AuxLEDPin).Msg("Failed to drive aux LED")
	} else {
		log.Debug().Bool("on", auxOn).Msg("Aux LED updated")
	}

	datadog.BoolGauge("sensor.flame", reading.FlameDetected)
	datadog.BoolGauge("sensor.light", reading.LightDetected)
	if c.Status != nil {
		c.Status.SetReading(reading)
		c.Status.SetAuxLED(auxOn)
	}
	c.Events.Publish(events.Telemetry, reading)
	return nil
}

// TelemetryDocument is the merge-write sent to the store root each tick.
func TelemetryDocument(r model.SensorReading) map[string]any {
	return map[string]any{
		"Temperature": map[string]any{"value": *r.TemperatureC},
		"Humidity":    map[string]any{"value": *r.HumidityPct},
		"FlameStatus": map[string]any{"value": model.FlameStatus(r.FlameDetected)},
	}
}

// AuxLEDOn follows the light comparator: dark turns the LED off.
func AuxLEDOn(r model.SensorReading) bool {
	return r.LightDetected
}
