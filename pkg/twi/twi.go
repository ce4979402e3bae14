// Package twi — драйверы шины для wire.Controller: periph.io, /dev/i2c-N, последовательный
// мост и шина в памяти.
package twi

import (
	"sync/atomic"

	"github.com/shiwa/twowire/pkg/wire"
)

// stickyFlag — флаг таймаута: выставляется драйвером, сбрасывается только явно.
type stickyFlag struct {
	v atomic.Bool
}

func (f *stickyFlag) set() {
	f.v.Store(true)
}

func (f *stickyFlag) manage(clear bool) bool {
	if clear {
		return f.v.Swap(false)
	}
	return f.v.Load()
}

// Scan пробует адреса [first, last] пустой записью и возвращает ответившие.
func Scan(c *wire.Controller, first, last uint8) []uint8 {
	var found []uint8
	for a := int(first); a <= int(last); a++ {
		c.BeginTransmission(uint8(a))
		if c.EndTransmission() == wire.StatusSuccess {
			found = append(found, uint8(a))
		}
	}
	return found
}
