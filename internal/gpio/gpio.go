package gpio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/pinctrl"
)

// ErrHardwareLost is returned once the GPIO mapping is gone. Callers treat it as fatal.
var ErrHardwareLost = errors.New("gpio: hardware access lost")

// Port is the controller's view of the board: discrete lines plus one servo PWM channel.
type Port interface {
	ReadDigital(pin int) (model.Level, error)
	WriteDigital(pin int, level model.Level) error
	SetServoDutyCycle(percent float64) error
	Close() error
}

type PortConfig struct {
	Inputs           []int
	Outputs          []int
	ServoPin         int
	ServoFrequencyHz int
	SafeMode         bool
}

// duty steps per PWM period; 2000 gives 0.05% resolution
const servoCycleLen uint32 = 2000

type RPIOPort struct {
	mu      sync.RWMutex
	open    bool
	cfg     PortConfig
	drv     driver
	outputs map[int]bool
}

var defaultDriver driver = rpioDriver{}

// Open maps the GPIO registers and configures every line in cfg. All outputs start LOW
// and the servo starts with a neutral duty cycle.
func Open(cfg PortConfig) (*RPIOPort, error) {
	drv := defaultDriver
	if err := drv.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gpio memory: %w", err)
	}

	p := &RPIOPort{
		open:    true,
		cfg:     cfg,
		drv:     drv,
		outputs: make(map[int]bool, len(cfg.Outputs)),
	}

	for _, pin := range cfg.Inputs {
		drv.Input(pin)
	}
	for _, pin := range cfg.Outputs {
		p.outputs[pin] = true
		if cfg.SafeMode {
			continue
		}
		drv.Output(pin)
		drv.Write(pin, model.Low)
	}

	if !cfg.SafeMode {
		drv.PWM(cfg.ServoPin, cfg.ServoFrequencyHz*int(servoCycleLen))
		drv.Duty(cfg.ServoPin, 0, servoCycleLen)
	}

	log.Info().
		Ints("inputs", cfg.Inputs).
		Ints("outputs", cfg.Outputs).
		Int("servo_pin", cfg.ServoPin).
		Bool("safe_mode", cfg.SafeMode).
		Msg("GPIO port opened")

	return p, nil
}

func (p *RPIOPort) ReadDigital(pin int) (model.Level, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return model.Low, ErrHardwareLost
	}
	return p.drv.Read(pin), nil
}

func (p *RPIOPort) WriteDigital(pin int, level model.Level) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return ErrHardwareLost
	}
	if !p.outputs[pin] {
		return fmt.Errorf("pin %d is not configured as an output", pin)
	}
	if p.cfg.SafeMode {
		log.Debug().Int("pin", pin).Str("level", level.String()).Msg("Safe mode: skipping GPIO write")
		return nil
	}
	p.drv.Write(pin, level)
	return nil
}

// SetServoDutyCycle takes a percentage of the PWM period; 0 stops the signal.
func (p *RPIOPort) SetServoDutyCycle(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("duty cycle %.2f%% out of range", percent)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return ErrHardwareLost
	}
	if p.cfg.SafeMode {
		return nil
	}
	p.drv.Duty(p.cfg.ServoPin, DutyLength(percent), servoCycleLen)
	return nil
}

// Close de-energizes the servo, drives every output LOW, returns the lines to inputs
// and unmaps the registers. Safe to call more than once.
func (p *RPIOPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.open {
		return nil
	}
	p.open = false

	if !p.cfg.SafeMode {
		p.drv.Duty(p.cfg.ServoPin, 0, servoCycleLen)
		p.drv.StopPWM()
		p.drv.Input(p.cfg.ServoPin)
		for _, pin := range sortedPins(p.outputs) {
			p.drv.Write(pin, model.Low)
			p.drv.Input(pin)
		}
	}

	if err := p.drv.Close(); err != nil {
		return fmt.Errorf("failed to close gpio memory: %w", err)
	}
	log.Info().Msg("GPIO port released")
	return nil
}

// DutyLength converts a duty percentage into PWM counts for the servo cycle.
func DutyLength(percent float64) uint32 {
	return uint32(math.Round(percent / 100 * float64(servoCycleLen)))
}

func sortedPins(pins map[int]bool) []int {
	out := make([]int, 0, len(pins))
	for pin := range pins {
		out = append(out, pin)
	}
	sort.Ints(out)
	return out
}

var readLevel = pinctrl.ReadLevel

// ValidateStartupPins checks through pinctrl that no output line was left driven HIGH
// by a previous run before the controller takes over.
func ValidateStartupPins(outputs map[string]int) error {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pin := outputs[name]
		level, err := readLevel(pin)
		if err != nil {
			return fmt.Errorf("failed to read pin level for %s (GPIO %d): %w", name, pin, err)
		}
		if level {
			return fmt.Errorf("pin %d (%s) is HIGH at startup (expected LOW)", pin, name)
		}
	}
	return nil
}
