package shutdown

import (
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/smarthome-controller/internal/datadog"
	"github.com/thatsimonsguy/smarthome-controller/internal/env"
	"github.com/thatsimonsguy/smarthome-controller/internal/pinctrl"
)

var (
	exit   = os.Exit
	setPin = pinctrl.SetPin
)

// Release de-energizes and frees the hardware. If the port cannot be closed cleanly
// the outputs are forced LOW through pinctrl instead.
func Release() {
	defer datadog.Close()

	if env.Port == nil {
		return
	}
	err := env.Port.Close()
	if err == nil {
		log.Info().Msg("Servo parked and outputs released")
		return
	}
	log.Error().Err(err).Msg("Failed to close GPIO port, forcing outputs low")

	if env.Cfg == nil || env.Cfg.SafeMode || env.Cfg.FakeHardware {
		return
	}
	outputs := env.Cfg.OutputPins()
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := setPin(outputs[name], "op", "pn", "dl"); err != nil {
			log.Error().Err(err).Str("pin", name).Msg("Failed to force pin low")
		}
	}
}

func Shutdown() {
	Release()
	log.Info().Msg("Controller shut down")
	exit(0)
}

func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	Release()
	exit(1)
}
