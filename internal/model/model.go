package model

import "time"

type Level int

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// LevelFor maps an on/off decision onto a line level for an active-high output.
func LevelFor(on bool) Level {
	if on {
		return High
	}
	return Low
}

type DoorCommand int

const (
	DoorClosed DoorCommand = 0
	DoorOpen   DoorCommand = 1
)

func (c DoorCommand) String() string {
	switch c {
	case DoorClosed:
		return "closed"
	case DoorOpen:
		return "open"
	default:
		return "invalid"
	}
}

func (c DoorCommand) Valid() bool {
	return c == DoorClosed || c == DoorOpen
}

type DoorState struct {
	// nil until the first command after startup
	LastCommanded *DoorCommand `json:"last_commanded"`
	AngleDeg      int          `json:"angle_deg"`
}

type AlarmState string

const (
	AlarmIdle   AlarmState = "idle"
	AlarmActive AlarmState = "active"
)

// Flame status values mirrored to the remote store.
const (
	FlameDetected    = "Detected"
	FlameNotDetected = "Not Detected"
)

func FlameStatus(detected bool) string {
	if detected {
		return FlameDetected
	}
	return FlameNotDetected
}

type SensorReading struct {
	TemperatureC  *float64  `json:"temperature_c"`
	HumidityPct   *float64  `json:"humidity_pct"`
	FlameDetected bool      `json:"flame_detected"`
	LightDetected bool      `json:"light_detected"`
	Timestamp     time.Time `json:"timestamp"`
}

// HasClimate reports whether the temperature/humidity pair was read.
func (r SensorReading) HasClimate() bool {
	return r.TemperatureC != nil && r.HumidityPct != nil
}

// ActuatorCommand is one poll of the remote store. Door is nil when no usable
// door command was read.
type ActuatorCommand struct {
	LED1On bool
	LED2On bool
	Door   *DoorCommand
}
