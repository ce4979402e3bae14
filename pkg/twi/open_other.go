//go:build !linux

package twi

import (
	"errors"
	"log/slog"

	"github.com/shiwa/twowire/pkg/wire"
)

func openI2CDev(path string, logger *slog.Logger) (wire.Transport, error) {
	return nil, errors.New("i2cdev: only supported on Linux")
}
