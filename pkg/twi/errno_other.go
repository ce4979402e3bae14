//go:build !linux

package twi

import (
	"errors"
	"os"

	"github.com/shiwa/twowire/pkg/wire"
)

func statusFromErr(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, os.ErrDeadlineExceeded):
		return wire.StatusTimeout
	default:
		return wire.StatusOther
	}
}
