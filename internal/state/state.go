package state

import (
	"sync"
	"time"

	"github.com/thatsimonsguy/smarthome-controller/internal/model"
)

// Status is the controller's in-memory view of what each loop last did.
// Each loop writes only its own fields; the API reads snapshots.
type Status struct {
	mu        sync.RWMutex
	alarm     model.AlarmState
	door      model.DoorState
	reading   *model.SensorReading
	led1      bool
	led2      bool
	auxLED    bool
	updatedAt time.Time
	now       func() time.Time
}

type Snapshot struct {
	Alarm     model.AlarmState     `json:"alarm"`
	Door      model.DoorState      `json:"door"`
	Reading   *model.SensorReading `json:"reading"`
	LED1      bool                 `json:"led1"`
	LED2      bool                 `json:"led2"`
	AuxLED    bool                 `json:"aux_led"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func NewStatus(initialDoor model.DoorState) *Status {
	s := &Status{alarm: model.AlarmIdle, door: initialDoor, now: time.Now}
	s.updatedAt = s.now()
	return s
}

func (s *Status) SetAlarm(a model.AlarmState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarm = a
	s.updatedAt = s.now()
}

func (s *Status) SetDoor(d model.DoorState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.LastCommanded != nil {
		cmd := *d.LastCommanded
		d.LastCommanded = &cmd
	}
	s.door = d
	s.updatedAt = s.now()
}

func (s *Status) SetReading(r model.SensorReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = &r
	s.updatedAt = s.now()
}

func (s *Status) SetLEDs(led1, led2 bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.led1, s.led2 = led1, led2
	s.updatedAt = s.now()
}

func (s *Status) SetAuxLED(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auxLED = on
	s.updatedAt = s.now()
}

func (s *Status) Alarm() model.AlarmState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarm
}

// Snapshot returns a copy that is safe to hold after the lock is released.
func (s *Status) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Alarm:     s.alarm,
		Door:      s.door,
		LED1:      s.led1,
		LED2:      s.led2,
		AuxLED:    s.auxLED,
		UpdatedAt: s.updatedAt,
	}
	if s.door.LastCommanded != nil {
		cmd := *s.door.LastCommanded
		snap.Door.LastCommanded = &cmd
	}
	if s.reading != nil {
		r := *s.reading
		snap.Reading = &r
	}
	return snap
}
