package twi

import (
	"fmt"
	"log/slog"

	"github.com/shiwa/twowire/pkg/wire"
)

// Имена драйверов для Open
const (
	DriverPeriph   = "periph"
	DriverI2CDev   = "i2cdev"
	DriverBridge   = "bridge"
	DriverLoopback = "loopback"
)

// Options выбирает драйвер шины и его устройство.
type Options struct {
	Driver string
	Device string // имя шины periph, путь /dev/i2c-N или последовательный порт моста
	Baud   int    // только для bridge
	Logger *slog.Logger
}

// Open создаёт драйвер по имени (аналог фабрики источников). Устройство открывается в Init.
func Open(o Options) (wire.Transport, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	switch o.Driver {
	case "", DriverPeriph:
		// пустое имя означает первую найденную шину
		return NewPeriph(o.Device, o.Logger), nil
	case DriverI2CDev:
		dev := o.Device
		if dev == "" {
			dev = "/dev/i2c-1"
		}
		return openI2CDev(dev, o.Logger)
	case DriverBridge:
		dev := o.Device
		if dev == "" {
			dev = "/dev/ttyUSB0"
		}
		baud := o.Baud
		if baud == 0 {
			baud = 115200
		}
		return NewBridge(dev, baud, o.Logger), nil
	case DriverLoopback:
		return NewLoopback(), nil
	default:
		return nil, fmt.Errorf("unknown driver: %s", o.Driver)
	}
}
