package twi

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shiwa/twowire/pkg/wire"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Periph — драйвер мастера поверх periph.io. Slave-режим не поддерживается.
//
// periph выполняет запись и чтение одной транзакцией Tx, поэтому запись без stop
// удерживается до следующего чтения по тому же адресу и уходит вместе с ним (repeated start).
type Periph struct {
	mu   sync.Mutex
	name string
	log  *slog.Logger
	bus  i2c.BusCloser

	freq    uint32
	timeout time.Duration
	reset   bool
	flag    stickyFlag
	held    heldWrite
}

var _ wire.Transport = (*Periph)(nil)

// NewPeriph создаёт драйвер для шины name ("1", "/dev/i2c-1", ...; пустое имя означает первую доступную).
// Шина открывается в Init.
func NewPeriph(name string, logger *slog.Logger) *Periph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Periph{
		name: name,
		log:  logger.With("driver", "periph", "bus", name),
	}
}

func (p *Periph) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open()
}

// open вызывается под p.mu.
func (p *Periph) open() error {
	if p.bus != nil {
		return nil
	}
	if _, err := host.Init(); err != nil {
		p.log.Debug("host init skipped", "error", err)
	}
	bus, err := i2creg.Open(p.name)
	if err != nil {
		return fmt.Errorf("i2creg open %q: %w", p.name, err)
	}
	p.bus = bus
	if p.freq != 0 {
		if err := bus.SetSpeed(physic.Frequency(p.freq) * physic.Hertz); err != nil {
			p.log.Debug("speed not applied", "error", err)
		}
	}
	p.log.Info("bus opened", "bus", bus.String())
	return nil
}

func (p *Periph) Disable() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bus == nil {
		return nil
	}
	err := p.bus.Close()
	p.bus = nil
	p.held.take()
	return err
}

func (p *Periph) SetAddress(uint8) error {
	return wire.ErrSlaveUnsupported
}

func (p *Periph) SetFrequency(hz uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freq = hz
	if p.bus == nil {
		return nil
	}
	return p.bus.SetSpeed(physic.Frequency(hz) * physic.Hertz)
}

func (p *Periph) SetTimeout(timeout time.Duration, resetOnTimeout bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = timeout
	p.reset = resetOnTimeout
}

func (p *Periph) ManageTimeoutFlag(clear bool) bool {
	return p.flag.manage(clear)
}

func (p *Periph) SlaveTransmit([]byte) error {
	return wire.ErrNotSlaveTransmitter
}

func (p *Periph) OnSlaveTransmit(func())      {}
func (p *Periph) OnSlaveReceive(func([]byte)) {}

func (p *Periph) BlockingWrite(addr uint8, w []byte, wait, sendStop bool) wire.Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.flushHeld()
	if !sendStop {
		p.held.hold(addr, w)
		return wire.StatusSuccess
	}
	return p.tx(addr, w, nil)
}

func (p *Periph) BlockingRead(addr uint8, r []byte, sendStop bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	var w []byte
	if haddr, data, ok := p.held.take(); ok {
		if haddr == addr {
			w = data
		} else if st := p.tx(haddr, data, nil); st != wire.StatusSuccess {
			p.log.Debug("held write failed", "address", haddr, "status", st.String())
		}
	}
	if st := p.tx(addr, w, r); st != wire.StatusSuccess {
		return 0
	}
	return len(r)
}

// flushHeld отправляет удерживаемую запись отдельной транзакцией. Вызывается под p.mu.
func (p *Periph) flushHeld() {
	if addr, data, ok := p.held.take(); ok {
		if st := p.tx(addr, data, nil); st != wire.StatusSuccess {
			p.log.Debug("held write failed", "address", addr, "status", st.String())
		}
	}
}

// tx выполняет одну транзакцию и отмечает таймаут. Вызывается под p.mu.
func (p *Periph) tx(addr uint8, w, r []byte) wire.Status {
	if p.bus == nil {
		return wire.StatusOther
	}
	start := time.Now()
	err := p.bus.Tx(uint16(addr), w, r)
	elapsed := time.Since(start)

	st := statusFromErr(err)
	if st != wire.StatusTimeout && p.timeout > 0 && elapsed > p.timeout {
		st = wire.StatusTimeout
	}
	if st == wire.StatusTimeout {
		p.onTimeout(addr, elapsed)
	} else if err != nil {
		p.log.Debug("tx failed", "address", addr, "status", st.String(), "error", err)
	}
	return st
}

// onTimeout выставляет флаг и при необходимости переоткрывает шину. Вызывается под p.mu.
func (p *Periph) onTimeout(addr uint8, elapsed time.Duration) {
	p.flag.set()
	p.log.Warn("bus timeout", "address", addr, "elapsed", elapsed)
	if !p.reset || p.bus == nil {
		return
	}
	if err := p.bus.Close(); err != nil {
		p.log.Debug("close after timeout", "error", err)
	}
	p.bus = nil
	if err := p.open(); err != nil {
		p.log.Error("reopen after timeout", "error", err)
	}
}
