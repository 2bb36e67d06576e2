package gpio

import (
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/thatsimonsguy/smarthome-controller/internal/model"
)

// driver is the thin seam between RPIOPort and the register-level library.
type driver interface {
	Open() error
	Close() error
	Input(pin int)
	Output(pin int)
	Read(pin int) model.Level
	Write(pin int, level model.Level)
	PWM(pin int, clockHz int)
	Duty(pin int, dutyLen, cycleLen uint32)
	StopPWM()
}

type rpioDriver struct{}

func (rpioDriver) Open() error  { return rpio.Open() }
func (rpioDriver) Close() error { return rpio.Close() }

func (rpioDriver) Input(pin int)  { rpio.Pin(pin).Input() }
func (rpioDriver) Output(pin int) { rpio.Pin(pin).Output() }

func (rpioDriver) Read(pin int) model.Level {
	if rpio.Pin(pin).Read() == rpio.High {
		return model.High
	}
	return model.Low
}

func (rpioDriver) Write(pin int, level model.Level) {
	if level == model.High {
		rpio.Pin(pin).High()
		return
	}
	rpio.Pin(pin).Low()
}

func (rpioDriver) PWM(pin int, clockHz int) {
	p := rpio.Pin(pin)
	p.Mode(rpio.Pwm)
	p.Freq(clockHz)
	rpio.StartPwm()
}

func (rpioDriver) Duty(pin int, dutyLen, cycleLen uint32) {
	rpio.Pin(pin).DutyCycle(dutyLen, cycleLen)
}

func (rpioDriver) StopPWM() { rpio.StopPwm() }
