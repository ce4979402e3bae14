//go:build linux

package twi

import (
	"log/slog"

	"github.com/shiwa/twowire/pkg/wire"
)

func openI2CDev(path string, logger *slog.Logger) (wire.Transport, error) {
	return NewI2CDev(path, logger), nil
}
