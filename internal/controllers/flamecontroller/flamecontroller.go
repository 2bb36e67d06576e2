package flamecontroller

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

const FlameStatusPath = "/FlameStatus/value"

type FlameSensor interface {
	FlamePresent() (bool, error)
}

type Notifier interface {
	Send(title, message string) error
}

type Deps struct {
	Sensor       FlameSensor
	Port         gpio.Port
	Store        firebase.Store
	AlarmLEDPin  int
	BuzzerPin    int
	IdleInterval time.Duration
	HalfPeriod   time.Duration
	Status       *state.Status
	Events       *events.Publisher
	Notifier     Notifier
}

// Controller runs the flame alarm. While a flame is seen the alarm LED and buzzer
// blink together; the remote store hears about each episode once on entry and once on exit.
type Controller struct {
	Deps

	alarm     model.AlarmState
	outputsOn bool
	wait      func(ctx context.Context, d time.Duration) bool
}

func New(deps Deps) *Controller {
	return &Controller{Deps: deps, alarm: model.AlarmIdle, wait: sleepCtx}
}

func (c *Controller) Name() string { return "flame" }

func (c *Controller) State() model.AlarmState { return c.alarm }

func (c *Controller) Run(ctx context.Context) error {
	log.Info().
		Dur("idle_interval", c.IdleInterval).
		Dur("half_period", c.HalfPeriod).
		Msg("Starting flame controller")
	defer c.silence()

	for {
		present, err := c.Sensor.FlamePresent()
		if err != nil {
			if errors.Is(err, gpio.ErrHardwareLost) {
				return err
			}
			log.Error().Err(err).Msg("Failed to read flame sensor")
			// keep sounding if already alarmed
			present = c.alarm == model.AlarmActive
		}

		var delay time.Duration
		switch {
		case c.alarm == model.AlarmIdle && !present:
			log.Debug().Msg("Flame not detected")
			delay = c.IdleInterval

		case c.alarm == model.AlarmIdle && present:
			c.activate(ctx)
			fallthrough

		case c.alarm == model.AlarmActive && present:
			if err := c.toggle(); err != nil {
				return err
			}
			delay = c.HalfPeriod

		case c.alarm == model.AlarmActive && !present:
			if err := c.clear(ctx); err != nil {
				return err
			}
			delay = c.IdleInterval
		}

		if !c.wait(ctx, delay) {
			log.Info().Msg("Flame controller stopped")
			return nil
		}
	}
}

func (c *Controller) activate(ctx context.Context) {
	log.Warn().Msg("Flame detected! Blinking LED and sounding alarm")
	c.alarm = model.AlarmActive
	c.outputsOn = false
	c.report(ctx, true)
}

func (c *Controller) clear(ctx context.Context) error {
	log.Info().Msg("No flame detected, alarm cleared")
	c.alarm = model.AlarmIdle
	c.outputsOn = false
	if err := c.drive(model.Low); err != nil {
		return err
	}
	c.report(ctx, false)
	return nil
}

// toggle flips the alarm LED and buzzer together.
func (c *Controller) toggle() error {
	c.outputsOn = !c.outputsOn
	return c.drive(model.LevelFor(c.outputsOn))
}

func (c *Controller) drive(level model.Level) error {
	for _, pin := range []int{c.AlarmLEDPin, c.BuzzerPin} {
		if err := c.Port.WriteDigital(pin, level); err != nil {
			if errors.Is(err, gpio.ErrHardwareLost) {
				return err
			}
			log.Error().Err(err).Int("pin", pin).Str("level", level.String()).Msg("Failed to drive alarm output")
		}
	}
	return nil
}

func (c *Controller) report(ctx context.Context, detected bool) {
	status := model.FlameStatus(detected)
	if err := c.Store.Put(ctx, FlameStatusPath, status); err != nil {
		log.Error().Err(err).Str("status", status).Msg("Failed to report flame status")
	}

	datadog.BoolGauge("alarm.active", detected)
	if detected {
		datadog.Incr("alarm.episode")
	}
	if c.Status != nil {
		c.Status.SetAlarm(c.alarm)
	}
	c.Events.Publish(events.Alarm, string(c.alarm))

	if c.Notifier == nil {
		return
	}
	title, message := "Flame cleared", "Flame sensor no longer detects a flame."
	if detected {
		title, message = "Flame detected!", "Flame sensor triggered. Alarm is sounding."
	}
	if err := c.Notifier.Send(title, message); err != nil {
		log.Warn().Err(err).Msg("Failed to send alarm notification")
	}
}

// silence leaves both alarm outputs LOW when the loop exits.
func (c *Controller) silence() {
	for _, pin := range []int{c.AlarmLEDPin, c.BuzzerPin} {
		if err := c.Port.WriteDigital(pin, model.Low); err != nil {
			log.Warn().Err(err).Int("pin", pin).Msg("Failed to silence alarm output")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
