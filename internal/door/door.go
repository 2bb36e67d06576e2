package door

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/smarthome-controller/internal/datadog"
	"github.com/thatsimonsguy/smarthome-controller/internal/events"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
)

type Config struct {
	OpenAngle  int
	CloseAngle int
	StepDelay  time.Duration
}

// Controller owns the door servo. It remembers the last command it carried out so a
// repeated command from the remote store does not move the door again.
type Controller struct {
	port   gpio.Port
	cfg    Config
	status *state.Status
	events *events.Publisher
	sleep  func(time.Duration)

	sweepMu sync.Mutex

	mu    sync.RWMutex
	state model.DoorState
}

func NewController(port gpio.Port, cfg Config, status *state.Status, pub *events.Publisher) *Controller {
	return &Controller{
		port:   port,
		cfg:    cfg,
		status: status,
		events: pub,
		sleep:  time.Sleep,
		// last command is unknown at startup so the first command always runs
		state: model.DoorState{AngleDeg: cfg.CloseAngle},
	}
}

// DutyCycle maps a servo angle onto the 50 Hz duty percentage: 0° = 2.5%, 180° = 12.5%.
func DutyCycle(angle int) float64 {
	return float64(angle)/18 + 2.5
}

// MaxSweepDuration is how long one full sweep blocks the caller.
func (c *Controller) MaxSweepDuration() time.Duration {
	span := c.cfg.OpenAngle - c.cfg.CloseAngle
	if span < 0 {
		span = -span
	}
	return time.Duration(span+1) * c.cfg.StepDelay
}

func (c *Controller) State() model.DoorState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.state
	if s.LastCommanded != nil {
		cmd := *s.LastCommanded
		s.LastCommanded = &cmd
	}
	return s
}

// SetDoorState sweeps the servo toward cmd one degree at a time and then releases it.
// A command equal to the last one carried out is a no-op. An error means the port
// refused a write; the sweep is abandoned and the last command is left as it was.
func (c *Controller) SetDoorState(cmd model.DoorCommand) error {
	if !cmd.Valid() {
		return fmt.Errorf("invalid door command %d", int(cmd))
	}

	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()

	c.mu.RLock()
	last := c.state.LastCommanded
	c.mu.RUnlock()
	if last != nil && *last == cmd {
		return nil
	}

	start, end := c.cfg.OpenAngle, c.cfg.CloseAngle
	if cmd == model.DoorOpen {
		start, end = c.cfg.CloseAngle, c.cfg.OpenAngle
	}
	step := 1
	if end < start {
		step = -1
	}

	log.Info().
		Str("command", cmd.String()).
		Int("from", start).
		Int("to", end).
		Msg("Moving door")

	began := time.Now()
	for angle := start; ; angle += step {
		if err := c.port.SetServoDutyCycle(DutyCycle(angle)); err != nil {
			c.release()
			return fmt.Errorf("door sweep aborted at %d°: %w", angle, err)
		}
		c.setAngle(angle)
		c.sleep(c.cfg.StepDelay)
		if angle == end {
			break
		}
	}

	if err := c.port.SetServoDutyCycle(0); err != nil {
		return fmt.Errorf("failed to release servo: %w", err)
	}

	c.mu.Lock()
	committed := cmd
	c.state.LastCommanded = &committed
	snapshot := c.state
	c.mu.Unlock()

	log.Info().
		Str("command", cmd.String()).
		Int("angle", end).
		Dur("elapsed", time.Since(began)).
		Msg("Door moved")

	datadog.Incr("door.sweep", "command:"+cmd.String())
	datadog.Gauge("door.angle", float64(end))
	if c.status != nil {
		c.status.SetDoor(snapshot)
	}
	c.events.Publish(events.Door, map[string]any{"command": cmd.String(), "angle": end})
	return nil
}

// Park leaves the servo unpowered.
func (c *Controller) Park() error {
	c.sweepMu.Lock()
	defer c.sweepMu.Unlock()
	return c.port.SetServoDutyCycle(0)
}

func (c *Controller) setAngle(angle int) {
	c.mu.Lock()
	c.state.AngleDeg = angle
	c.mu.Unlock()
}

func (c *Controller) release() {
	if err := c.port.SetServoDutyCycle(0); err != nil {
		log.Error().Err(err).Msg("Failed to release servo after aborted sweep")
	}
}
