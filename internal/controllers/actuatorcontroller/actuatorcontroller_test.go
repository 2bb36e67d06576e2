package actuatorcontroller

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/smarthome-controller/internal/door"
	"github.com/thatsimonsguy/smarthome-controller/internal/firebase"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/state"
)

const (
	led1Pin = 17
	led2Pin = 22
)

type recordingDoor struct {
	commands []model.DoorCommand
	err      error
}

func (d *recordingDoor) SetDoorState(cmd model.DoorCommand) error {
	d.commands = append(d.commands, cmd)
	return d.err
}

func newTestController(doorSetter DoorSetter) (*Controller, *gpio.FakePort, *firebase.MemoryStore) {
	port := gpio.NewFakePort()
	store := firebase.NewMemoryStore()
	c := New(Deps{
		Port:     port,
		Store:    store,
		Door:     doorSetter,
		LED1Pin:  led1Pin,
		LED2Pin:  led2Pin,
		Interval: 10 * time.Millisecond,
		Status:   state.NewStatus(model.DoorState{}),
	})
	return c, port, store
}

func TestTick_LEDsAndDoorFromStore(t *testing.T) {
	port := gpio.NewFakePort()
	store := firebase.NewMemoryStore()
	store.Seed("/LED1", 1)
	store.Seed("/LED2", 0)
	store.Seed("/Door", 1)

	doorCtl := door.NewController(port, door.Config{OpenAngle: 33, CloseAngle: 67}, nil, nil)
	c := New(Deps{Port: port, Store: store, Door: doorCtl, LED1Pin: led1Pin, LED2Pin: led2Pin, Interval: time.Second})

	require.NoError(t, c.tick(context.Background()))

	assert.Equal(t, []model.Level{model.High}, port.WritesTo(led1Pin))
	assert.Equal(t, []model.Level{model.Low}, port.WritesTo(led2Pin))

	duties := port.Duties()
	require.Len(t, duties, 35+1)
	assert.InDelta(t, door.DutyCycle(67), duties[0], 1e-9, "sweep starts at the close angle")
	assert.InDelta(t, door.DutyCycle(33), duties[34], 1e-9)
	assert.Equal(t, 0.0, duties[35])
	assert.Equal(t, model.DoorOpen, *doorCtl.State().LastCommanded)
}

func TestTick_MissingValuesMeanOffAndNoCommand(t *testing.T) {
	d := &recordingDoor{}
	c, port, _ := newTestController(d)

	require.NoError(t, c.tick(context.Background()))

	assert.Equal(t, []model.Level{model.Low}, port.WritesTo(led1Pin))
	assert.Equal(t, []model.Level{model.Low}, port.WritesTo(led2Pin))
	assert.Empty(t, d.commands)
}

func TestTick_MalformedDoorIsIgnored(t *testing.T) {
	d := &recordingDoor{}
	c, _, store := newTestController(d)
	store.Seed("/Door", "open")

	require.NoError(t, c.tick(context.Background()))
	assert.Empty(t, d.commands)
}

func TestTick_MalformedDoorKeepsLastCommand(t *testing.T) {
	port := gpio.NewFakePort()
	store := firebase.NewMemoryStore()
	doorCtl := door.NewController(port, door.Config{OpenAngle: 33, CloseAngle: 67}, nil, nil)
	require.NoError(t, doorCtl.SetDoorState(model.DoorOpen))
	port.Reset()

	c := New(Deps{Port: port, Store: store, Door: doorCtl, LED1Pin: led1Pin, LED2Pin: led2Pin, Interval: time.Second})
	store.Seed("/Door", "open")
	require.NoError(t, c.tick(context.Background()))

	require.NotNil(t, doorCtl.State().LastCommanded)
	assert.Equal(t, model.DoorOpen, *doorCtl.State().LastCommanded)
	assert.Empty(t, port.Duties(), "servo must not move")
}

func TestFetch_BuildsActuatorCommand(t *testing.T) {
	c, _, store := newTestController(&recordingDoor{})
	store.Seed("/LED1", 1)
	store.Seed("/LED2", true)
	store.Seed("/Door", "0")

	cmd := c.fetch(context.Background())
	assert.True(t, cmd.LED1On)
	assert.True(t, cmd.LED2On)
	require.NotNil(t, cmd.Door)
	assert.Equal(t, model.DoorClosed, *cmd.Door)

	store.Seed("/Door", 7)
	assert.Nil(t, c.fetch(context.Background()).Door)
}

func TestExecute_AppliesCommand(t *testing.T) {
	d := &recordingDoor{}
	c, port, _ := newTestController(d)
	open := model.DoorOpen

	require.NoError(t, c.execute(model.ActuatorCommand{LED1On: true, Door: &open}))
	assert.Equal(t, []model.Level{model.High}, port.WritesTo(led1Pin))
	assert.Equal(t, []model.Level{model.Low}, port.WritesTo(led2Pin))
	assert.Equal(t, []model.DoorCommand{model.DoorOpen}, d.commands)

	require.NoError(t, c.execute(model.ActuatorCommand{}))
	assert.Len(t, d.commands, 1, "no door command means no door call")
}

func TestTick_StoreErrorTurnsLEDsOff(t *testing.T) {
	d := &recordingDoor{}
	c, port, store := newTestController(d)
	store.Seed("/LED1", 1)
	store.GetErr = errors.New("unreachable")

	require.NoError(t, c.tick(context.Background()))
	assert.Equal(t, []model.Level{model.Low}, port.WritesTo(led1Pin))
	assert.Empty(t, d.commands)
}

func TestTick_DoorErrorHandling(t *testing.T) {
	d := &recordingDoor{err: errors.New("pwm busy")}
	c, _, store := newTestController(d)
	store.Seed("/Door", 0)

	require.NoError(t, c.tick(context.Background()), "non-fatal door errors are logged")

	d.err = gpio.ErrHardwareLost
	assert.ErrorIs(t, c.tick(context.Background()), gpio.ErrHardwareLost)
}

func TestTick_HardwareLostOnLEDWrite(t *testing.T) {
	c, port, _ := newTestController(&recordingDoor{})
	require.NoError(t, port.Close())
	assert.ErrorIs(t, c.tick(context.Background()), gpio.ErrHardwareLost)
}

func TestTick_UpdatesStatus(t *testing.T) {
	c, _, store := newTestController(&recordingDoor{})
	store.Seed("/LED2", 1)

	require.NoError(t, c.tick(context.Background()))
	snap := c.Status.Snapshot()
	assert.False(t, snap.LED1)
	assert.True(t, snap.LED2)
}

func TestParseLEDState(t *testing.T) {
	cases := map[string]bool{
		`1`:     true,
		`1.0`:   true,
		`true`:  true,
		`0`:     false,
		`2`:     false,
		`"1"`:   false,
		`false`: false,
		`{}`:    false,
		`garb`:  false,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLEDState(json.RawMessage(in)), in)
	}
	assert.False(t, ParseLEDState(nil))
}

func TestParseDoorCommand(t *testing.T) {
	valid := map[string]model.DoorCommand{
		`1`:     model.DoorOpen,
		`0`:     model.DoorClosed,
		`1.9`:   model.DoorOpen,
		`0.4`:   model.DoorClosed,
		`"1"`:   model.DoorOpen,
		`" 0 "`: model.DoorClosed,
		`true`:  model.DoorOpen,
		`false`: model.DoorClosed,
	}
	for in, want := range valid {
		cmd, ok := ParseDoorCommand(json.RawMessage(in))
		assert.True(t, ok, in)
		assert.Equal(t, want, cmd, in)
	}

	for _, in := range []string{`2`, `-1`, `"open"`, `"1.0"`, `[]`, `{"value":1}`, `null`, `1e300`} {
		_, ok := ParseDoorCommand(json.RawMessage(in))
		assert.False(t, ok, in)
	}
	_, ok := ParseDoorCommand(nil)
	assert.False(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	c, _, _ := newTestController(&recordingDoor{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("actuator controller did not stop")
	}
}
