package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/thatsimonsguy/smarthome-controller/internal/config"
	"github.com/thatsimonsguy/smarthome-controller/internal/door"
	"github.com/thatsimonsguy/smarthome-controller/internal/env"
	"github.com/thatsimonsguy/smarthome-controller/internal/gpio"
	"github.com/thatsimonsguy/smarthome-controller/internal/model"
	"github.com/thatsimonsguy/smarthome-controller/internal/pinctrl"
	"github.com/thatsimonsguy/smarthome-controller/internal/sensors"
	"github.com/thatsimonsguy/smarthome-controller/system/startup"
)

func main() {
	SetupCLI()
}

func SetupCLI() {
	var configFile, command string
	var doorState int
	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&command, "cmd", "", "Command to run: write-boot-script, install-services, run-boot-script, pins, read, door")
	flag.IntVar(&doorState, "door", -1, "Door command for -cmd door (0 = close, 1 = open)")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of smarthome-setup:")
		fmt.Println("  -config-file string\tPath to controller config file (default 'config.json')")
		fmt.Println("  -cmd string\tCommand to run: write-boot-script, install-services, run-boot-script, pins, read, door")
		fmt.Println("  -door int\tDoor command for -cmd door (0 = close, 1 = open)")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	cfg := config.LoadFile(configFile)
	env.Cfg = &cfg

	var err error
	switch command {
	case "write-boot-script":
		err = startup.WriteStartupScript()
	case "install-services":
		if err = startup.InstallStartupService(); err == nil {
			err = startup.InstallControllerService()
		}
	case "run-boot-script":
		err = startup.RunStartupScript()
	case "pins":
		err = printPins(&cfg)
	case "read":
		err = withPort(&cfg, func(port gpio.Port) error {
			reader := sensors.NewReader(port, *cfg.GPIO.FlameSensor, *cfg.GPIO.LightSensor, cfg.DHTDevicePath, cfg.SensorTimeout())
			reading, err := reader.Read()
			if err != nil {
				return err
			}
			if reading.HasClimate() {
				fmt.Printf("Temperature: %.1f°C, Humidity: %.1f%%\n", *reading.TemperatureC, *reading.HumidityPct)
			} else {
				fmt.Println("Failed to retrieve DHT11 sensor data.")
			}
			fmt.Printf("Flame Status: %s\n", model.FlameStatus(reading.FlameDetected))
			fmt.Printf("Light detected: %t\n", reading.LightDetected)
			return nil
		})
	case "door":
		cmd := model.DoorCommand(doorState)
		if !cmd.Valid() {
			fmt.Println("Error: -door must be 0 or 1")
			os.Exit(1)
		}
		err = withPort(&cfg, func(port gpio.Port) error {
			ctl := door.NewController(port, door.Config{
				OpenAngle:  cfg.DoorOpenAngle,
				CloseAngle: cfg.DoorCloseAngle,
				StepDelay:  cfg.ServoStepDelay(),
			}, nil, nil)
			return ctl.SetDoorState(cmd)
		})
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func printPins(cfg *config.Config) error {
	all, err := pinctrl.ReadAllPins()
	if err != nil {
		return err
	}
	named := cfg.OutputPins()
	for name, pin := range cfg.InputPins() {
		named[name] = pin
	}
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pin := named[name]
		st, ok := all[pin]
		if !ok {
			fmt.Printf("%-13s GPIO%-2d  not reported by pinctrl\n", name, pin)
			continue
		}
		fmt.Printf("%-13s GPIO%-2d  mode=%-3s pull=%-2s level=%s\n", name, pin, st.Mode, st.Pull, st.Level)
	}
	return nil
}

func withPort(cfg *config.Config, fn func(gpio.Port) error) error {
	outputs := make([]int, 0)
	for name, pin := range cfg.OutputPins() {
		if name != "servo" {
			outputs = append(outputs, pin)
		}
	}
	port, err := gpio.Open(gpio.PortConfig{
		Inputs:           []int{*cfg.GPIO.FlameSensor, *cfg.GPIO.LightSensor},
		Outputs:          outputs,
		ServoPin:         *cfg.GPIO.Servo,
		ServoFrequencyHz: cfg.ServoPWMFrequencyHz,
		SafeMode:         cfg.SafeMode,
	})
	if err != nil {
		return err
	}
	defer port.Close()
	return fn(port)
}
