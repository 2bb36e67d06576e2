package gpio

import (
	"sync"

	"github.com/thatsimonsguy/smarthome-controller/internal/model"
)

type Write struct {
	Pin   int
	Level model.Level
}

// FakePort records every write and serves reads from Levels or ReadFunc.
// It backs the controller tests and the -fake-hardware bench mode.
type FakePort struct {
	mu       sync.Mutex
	Levels   map[int]model.Level
	ReadFunc func(pin int) (model.Level, error)
	WriteErr error
	DutyErr  error
	Closed   bool
	// MaxHistory, when positive, keeps only the most recent writes and duties.
	MaxHistory int

	writes []Write
	duties []float64
}

func NewFakePort() *FakePort {
	return &FakePort{Levels: map[int]model.Level{}}
}

func (f *FakePort) SetLevel(pin int, level model.Level) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Levels[pin] = level
}

func (f *FakePort) ReadDigital(pin int) (model.Level, error) {
	f.mu.Lock()
	read := f.ReadFunc
	closed := f.Closed
	level := f.Levels[pin]
	f.mu.Unlock()

	if closed {
		return model.Low, ErrHardwareLost
	}
	if read != nil {
		return read(pin)
	}
	return level, nil
}

func (f *FakePort) WriteDigital(pin int, level model.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return ErrHardwareLost
	}
	if f.WriteErr != nil {
		return f.WriteErr
	}
	f.writes = trim(append(f.writes, Write{Pin: pin, Level: level}), f.MaxHistory)
	return nil
}

func (f *FakePort) SetServoDutyCycle(percent float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Closed {
		return ErrHardwareLost
	}
	if f.DutyErr != nil {
		return f.DutyErr
	}
	f.duties = trim(append(f.duties, percent), f.MaxHistory)
	return nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakePort) Writes() []Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Write(nil), f.writes...)
}

// WritesTo returns the levels written to one pin, in order.
func (f *FakePort) WritesTo(pin int) []model.Level {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Level
	for _, w := range f.writes {
		if w.Pin == pin {
			out = append(out, w.Level)
		}
	}
	return out
}

func (f *FakePort) Duties() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.duties...)
}

func (f *FakePort) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.duties = nil
}

func trim[T any](history []T, limit int) []T {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	// copy so the backing array does not keep growing
	return append(history[:0:0], history[len(history)-limit:]...)
}
