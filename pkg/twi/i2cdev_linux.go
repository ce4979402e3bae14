//go:build linux

package twi

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/shiwa/twowire/pkg/wire"
	"golang.org/x/sys/unix"
)

// ioctl из linux/i2c-dev.h
const (
	i2cTimeout = 0x0702 // таймаут адаптера в единицах по 10 мс
	i2cRdwr    = 0x0707 // комбинированная передача с repeated start
	i2cMsgRd   = 0x0001
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// I2CDev — драйвер мастера поверх /dev/i2c-N. Записи без stop копятся и уходят одним
// I2C_RDWR вместе со следующей передачей со stop, так что repeated start реальный.
type I2CDev struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
	fd   int

	timeout time.Duration
	reset   bool
	flag    stickyFlag
	held    []heldWrite
}

var _ wire.Transport = (*I2CDev)(nil)

// NewI2CDev создаёт драйвер для устройства path (например /dev/i2c-1). Открывается в Init.
func NewI2CDev(path string, logger *slog.Logger) *I2CDev {
	if logger == nil {
		logger = slog.Default()
	}
	return &I2CDev{
		path: path,
		log:  logger.With("driver", "i2cdev", "device", path),
		fd:   -1,
	}
}

func (d *I2CDev) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open()
}

// open вызывается под d.mu.
func (d *I2CDev) open() error {
	if d.fd >= 0 {
		return nil
	}
	fd, err := unix.Open(d.path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	d.fd = fd
	d.applyTimeout()
	d.log.Info("bus opened")
	return nil
}

// applyTimeout передаёт таймаут адаптеру. Вызывается под d.mu.
func (d *I2CDev) applyTimeout() {
	if d.fd < 0 || d.timeout <= 0 {
		return
	}
	ticks := (d.timeout + 10*time.Millisecond - 1) / (10 * time.Millisecond)
	if err := unix.IoctlSetInt(d.fd, i2cTimeout, int(ticks)); err != nil {
		d.log.Debug("adapter timeout not applied", "error", err)
	}
}

func (d *I2CDev) Disable() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held = d.held[:0]
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}

func (d *I2CDev) SetAddress(uint8) error {
	return wire.ErrSlaveUnsupported
}

// SetFrequency ничего не делает: частоту задаёт драйвер ядра (device tree, параметры модуля).
func (d *I2CDev) SetFrequency(hz uint32) error {
	d.log.Debug("clock is fixed by the kernel adapter", "requested", hz)
	return nil
}

func (d *I2CDev) SetTimeout(timeout time.Duration, resetOnTimeout bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = timeout
	d.reset = resetOnTimeout
	d.applyTimeout()
}

func (d *I2CDev) ManageTimeoutFlag(clear bool) bool {
	return d.flag.manage(clear)
}

func (d *I2CDev) SlaveTransmit([]byte) error {
	return wire.ErrNotSlaveTransmitter
}

func (d *I2CDev) OnSlaveTransmit(func())      {}
func (d *I2CDev) OnSlaveReceive(func([]byte)) {}

func (d *I2CDev) BlockingWrite(addr uint8, p []byte, wait, sendStop bool) wire.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	var h heldWrite
	h.hold(addr, p)
	d.held = append(d.held, h)
	if !sendStop {
		return wire.StatusSuccess
	}
	return d.submit(nil)
}

func (d *I2CDev) BlockingRead(addr uint8, p []byte, sendStop bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(p) == 0 && len(d.held) == 0 {
		return 0
	}
	if st := d.submit(&heldWrite{addr: addr, data: p, ok: true}); st != wire.StatusSuccess {
		return 0
	}
	return len(p)
}

// submit отправляет накопленные записи и необязательное чтение одним I2C_RDWR.
// Вызывается под d.mu.
func (d *I2CDev) submit(read *heldWrite) wire.Status {
	defer func() { d.held = d.held[:0] }()

	if d.fd < 0 {
		return wire.StatusOther
	}

	msgs := make([]i2cMsg, 0, len(d.held)+1)
	for i := range d.held {
		msgs = append(msgs, newMsg(d.held[i].addr, 0, d.held[i].data))
	}
	if read != nil {
		msgs = append(msgs, newMsg(read.addr, i2cMsgRd, read.data))
	}

	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	start := time.Now()
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), i2cRdwr, uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(msgs)
	runtime.KeepAlive(d.held)
	runtime.KeepAlive(read)

	var err error
	if errno != 0 {
		err = errno
	}
	st := statusFromErr(err)
	if st == wire.StatusTimeout {
		d.onTimeout(time.Since(start))
	} else if err != nil {
		d.log.Debug("transfer failed", "messages", len(msgs), "status", st.String(), "error", err)
	}
	return st
}

func newMsg(addr uint8, flags uint16, p []byte) i2cMsg {
	m := i2cMsg{addr: uint16(addr), flags: flags, len: uint16(len(p))}
	if len(p) > 0 {
		m.buf = uintptr(unsafe.Pointer(&p[0]))
	}
	return m
}

// onTimeout выставляет флаг и при необходимости переоткрывает устройство. Вызывается под d.mu.
func (d *I2CDev) onTimeout(elapsed time.Duration) {
	d.flag.set()
	d.log.Warn("bus timeout", "elapsed", elapsed)
	if !d.reset || d.fd < 0 {
		return
	}
	unix.Close(d.fd)
	d.fd = -1
	if err := d.open(); err != nil {
		d.log.Error("reopen after timeout", "error", err)
	}
}
