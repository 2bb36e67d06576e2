package env

import (
	"github.com/thatsimonsguy/smarthome-controller/internal/config"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
)

var (
	Cfg    *config.Config
	Port   gpio.Port
	Status *state.Status
)
