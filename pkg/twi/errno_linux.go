//go:build linux

package twi

import (
	"errors"
	"os"

	"github.com/shiwa/twowire/pkg/wire"
	"golang.org/x/sys/unix"
)

// statusFromErr переводит ошибку ядра или библиотеки в код статуса шины.
func statusFromErr(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, unix.ENXIO), errors.Is(err, unix.EREMOTEIO):
		return wire.StatusAddressNACK
	case errors.Is(err, unix.EIO):
		return wire.StatusDataNACK
	case errors.Is(err, unix.ETIMEDOUT), errors.Is(err, os.ErrDeadlineExceeded):
		return wire.StatusTimeout
	case errors.Is(err, unix.EMSGSIZE):
		return wire.StatusDataTooLong
	default:
		return wire.StatusOther
	}
}
