package actuatorcontroller

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thatsimonsguy/smarthome-controller/internal/datadog"
	"github.com/thatsimonsguy/smarthome-controller/internal/firebase"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
)

// Remote paths polled every tick.
const (
	LED1Path = "/LED1"
	LED2Path = "/LED2"
	DoorPath = "/Door"
)

type DoorSetter interface {
	SetDoorState(cmd model.DoorCommand) error
}

type Deps struct {
	Port     gpio.Port
	Store    firebase.Store
	Door     DoorSetter
	LED1Pin  int
	LED2Pin  int
	Interval time.Duration
	Status   *state.Status
}

// Controller applies the LED and door commands held in the remote store.
type Controller struct {
	Deps
}

func New(deps Deps) *Controller {
	return &Controller{Deps: deps}
}

func (c *Controller) Name() string { return "actuator" }

// Run polls start-to-start every Interval. A door sweep runs inside the tick, and
// ticks that come due during a sweep are dropped rather than queued.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Dur("interval", c.Interval).Msg("Starting actuator controller")

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()

	for {
		if err := c.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("Actuator controller stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (c *Controller) tick(ctx context.Context) error {
	return c.execute(c.fetch(ctx))
}

// fetch reads all three commands concurrently. A failed or unusable read turns an
// LED off and leaves the door without a command.
func (c *Controller) fetch(ctx context.Context) model.ActuatorCommand {
	var cmd model.ActuatorCommand
	var g errgroup.Group
	g.Go(func() error {
		cmd.LED1On = c.fetchLED(ctx, "LED1", LED1Path)
		return nil
	})
	g.Go(func() error {
		cmd.LED2On = c.fetchLED(ctx, "LED2", LED2Path)
		return nil
	})
	g.Go(func() error {
		cmd.Door = c.fetchDoor(ctx)
		return nil
	})
	_ = g.Wait()
	return cmd
}

func (c *Controller) fetchLED(ctx context.Context, name, path string) bool {
	raw, err := c.Store.Get(ctx, path)
	if err != nil {
		log.Warn().Err(err).Str("led", name).Msg("Failed to fetch LED state, turning off")
		return false
	}
	return ParseLEDState(raw)
}

func (c *Controller) fetchDoor(ctx context.Context) *model.DoorCommand {
	raw, err := c.Store.Get(ctx, DoorPath)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch door command")
		return nil
	}
	cmd, ok := ParseDoorCommand(raw)
	if !ok {
		if raw != nil {
			log.Warn().Str("value", string(raw)).Msg("Ignoring malformed door command")
		}
		return nil
	}
	return &cmd
}

// execute drives both LEDs and then, if a door command was read, sweeps the door.
// Only hardware loss is returned.
func (c *Controller) execute(cmd model.ActuatorCommand) error {
	led1, err := c.driveLED("LED1", c.LED1Pin, cmd.LED1On)
	if err != nil {
		return err
	}
	led2, err := c.driveLED("LED2", c.LED2Pin, cmd.LED2On)
	if err != nil {
		return err
	}
	if c.Status != nil {
		c.Status.SetLEDs(led1, led2)
	}

	if cmd.Door == nil {
		return nil
	}
	if err := c.Door.SetDoorState(*cmd.Door); err != nil {
		if errors.Is(err, gpio.ErrHardwareLost) {
			return err
		}
		log.Error().Err(err).Str("command", cmd.Door.String()).Msg("Failed to move door")
	}
	return nil
}

func (c *Controller) driveLED(name string, pin int, on bool) (bool, error) {
	if err := c.Port.WriteDigital(pin, model.LevelFor(on)); err != nil {
		if errors.Is(err, gpio.ErrHardwareLost) {
			return false, err
		}
		log.Error().Err(err).Str("led", name).Int("pin", pin).Msg("Failed to drive LED")
		return false, nil
	}

	log.Debug().Str("led", name).Bool("on", on).Msg("LED updated")
	datadog.BoolGauge("actuator.led", on, "led:"+strings.ToLower(name))
	return on, nil
}

// ParseLEDState reports whether a stored LED value means "on". Only 1 (or true) does.
func ParseLEDState(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case float64:
		return x == 1
	case bool:
		return x
	default:
		return false
	}
}

// ParseDoorCommand accepts a JSON number (truncated toward zero), a base-10 integer
// string, or a boolean. Anything else, or a value other than 0 or 1, is no command.
func ParseDoorCommand(raw json.RawMessage) (model.DoorCommand, bool) {
	if raw == nil {
		return 0, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}

	var n int
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) > math.MaxInt32 {
			return 0, false
		}
		n = int(x)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, false
		}
		n = parsed
	case bool:
		if x {
			n = 1
		}
	default:
		return 0, false
	}

	cmd := model.DoorCommand(n)
	if !cmd.Valid() {
		return 0, false
	}
	return cmd, true
}
