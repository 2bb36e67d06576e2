package sensors

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
)

// Files exposed by the kernel dht11 IIO driver, in milli-units.
const (
	tempFile     = "in_temp_input"
	humidityFile = "in_humidityrelative_input"
)

type Reader struct {
	port     gpio.Port
	flamePin int
	lightPin int
	dhtPath  string
	timeout  time.Duration
	now      func() time.Time
	readIIO  func(path string) (float64, error)

	// set while a DHT read goroutine is running, including one that timed out
	dhtBusy atomic.Bool
}

func NewReader(port gpio.Port, flamePin, lightPin int, dhtPath string, timeout time.Duration) *Reader {
	return &Reader{
		port:     port,
		flamePin: flamePin,
		lightPin: lightPin,
		dhtPath:  dhtPath,
		timeout:  timeout,
		now:      time.Now,
		readIIO:  ReadIIOValue,
	}
}

// Read takes one full sample. The only error it returns comes from the GPIO port;
// a failed DHT read leaves the climate fields nil.
func (r *Reader) Read() (model.SensorReading, error) {
	reading := model.SensorReading{Timestamp: r.now()}

	if humidity, temperature, ok := r.ReadDHT(); ok {
		reading.HumidityPct = &humidity
		reading.TemperatureC = &temperature
	}

	flame, err := r.FlamePresent()
	if err != nil {
		return reading, err
	}
	reading.FlameDetected = flame

	light, err := r.LightDetected()
	if err != nil {
		return reading, err
	}
	reading.LightDetected = light

	return reading, nil
}

// FlamePresent reads the flame sensor. The module pulls its output LOW when it sees a flame.
func (r *Reader) FlamePresent() (bool, error) {
	level, err := r.port.ReadDigital(r.flamePin)
	if err != nil {
		return false, fmt.Errorf("read flame sensor: %w", err)
	}
	return level == model.Low, nil
}

// LightDetected reads the photoresistor comparator; LOW means dark.
func (r *Reader) LightDetected() (bool, error) {
	level, err := r.port.ReadDigital(r.lightPin)
	if err != nil {
		return false, fmt.Errorf("read light sensor: %w", err)
	}
	return level == model.High, nil
}

type dhtResult struct {
	humidity, temperature float64
	ok                    bool
}

// ReadDHT returns humidity and temperature together or not at all. The kernel driver
// can block for a while on a bad bus, so the read is abandoned after the configured timeout.
// No new read starts until an abandoned one returns.
func (r *Reader) ReadDHT() (humidity, temperature float64, ok bool) {
	if !r.dhtBusy.CompareAndSwap(false, true) {
		log.Warn().Msg("Previous DHT11 read still running, skipping")
		return 0, 0, false
	}

	done := make(chan dhtResult, 1)
	go func() {
		h, t, ok := r.readDHTOnce()
		r.dhtBusy.Store(false)
		done <- dhtResult{h, t, ok}
	}()

	if r.timeout <= 0 {
		res := <-done
		return res.humidity, res.temperature, res.ok
	}

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.humidity, res.temperature, res.ok
	case <-timer.C:
		log.Warn().Dur("timeout", r.timeout).Msg("DHT11 read timed out")
		return 0, 0, false
	}
}

func (r *Reader) readDHTOnce() (float64, float64, bool) {
	temperature, err := r.readIIO(filepath.Join(r.dhtPath, tempFile))
	if err != nil {
		log.Debug().Err(err).Msg("DHT11 temperature read failed")
		return 0, 0, false
	}
	humidity, err := r.readIIO(filepath.Join(r.dhtPath, humidityFile))
	if err != nil {
		log.Debug().Err(err).Msg("DHT11 humidity read failed")
		return 0, 0, false
	}
	return humidity, temperature, true
}

// ReadIIOValue reads a milli-unit IIO attribute and scales it to units.
func ReadIIOValue(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	milli, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed IIO value in %s: %w", path, err)
	}
	return float64(milli) / 1000.0, nil
}
