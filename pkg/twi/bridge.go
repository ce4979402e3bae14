package twi

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shiwa/twowire/internal/bridgeproto"
	"github.com/shiwa/twowire/pkg/wire"
	"github.com/tarm/serial"
)

// controlTimeout ограничивает ожидание ответа на служебные запросы, если таймаут шины отключён.
const controlTimeout = 500 * time.Millisecond

var errBridgeClosed = errors.New("twi: bridge closed")

// Bridge — драйвер через последовательный порт к микроконтроллеру, который ведёт шину
// (мастер и slave). Кадры разбирает горутина чтения: ответы уходят ожидающему запросу,
// slave-события вызывают обработчики прямо на этой горутине.
//
// Из обработчиков slave-событий нельзя выполнять передачи мастера: ответ на них читает
// та же горутина.
type Bridge struct {
	log  *slog.Logger
	dial func() (io.ReadWriteCloser, error)

	mu      sync.Mutex // один запрос мастера за раз
	seq     uint8
	resp    chan bridgeproto.Frame
	done    chan struct{}
	freq    uint32
	timeout time.Duration
	reset   bool
	flag    stickyFlag

	wmu  sync.Mutex
	conn io.ReadWriteCloser

	hmu        sync.Mutex
	onTransmit func()
	onReceive  func(p []byte)
	replying   atomic.Bool
}

var _ wire.Transport = (*Bridge)(nil)

// NewBridge создаёт драйвер моста на последовательном порту port. Порт открывается в Init.
func NewBridge(port string, baud int, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return newBridge(func() (io.ReadWriteCloser, error) {
		p, err := serial.OpenPort(&serial.Config{Name: port, Baud: baud})
		if err != nil {
			return nil, fmt.Errorf("serial open %s: %w", port, err)
		}
		return p, nil
	}, logger.With("port", port))
}

// NewBridgeConn создаёт драйвер моста поверх уже открытого соединения.
func NewBridgeConn(conn io.ReadWriteCloser, logger *slog.Logger) *Bridge {
	return newBridge(func() (io.ReadWriteCloser, error) { return conn, nil }, logger)
}

func newBridge(dial func() (io.ReadWriteCloser, error), logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		log:  logger.With("driver", "bridge"),
		dial: dial,
	}
}

func (b *Bridge) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wmu.Lock()
	open := b.conn != nil
	b.wmu.Unlock()
	if open {
		return nil
	}

	conn, err := b.dial()
	if err != nil {
		return err
	}
	b.wmu.Lock()
	b.conn = conn
	b.wmu.Unlock()

	b.resp = make(chan bridgeproto.Frame, 1)
	b.done = make(chan struct{})
	go b.readLoop(conn, b.resp, b.done)

	if err := b.configure(); err != nil {
		b.wmu.Lock()
		b.conn = nil
		b.wmu.Unlock()
		conn.Close()
		<-b.done
		return fmt.Errorf("bridge config: %w", err)
	}
	b.log.Info("bridge ready")
	return nil
}

func (b *Bridge) Disable() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.wmu.Lock()
	conn := b.conn
	b.wmu.Unlock()
	if conn == nil {
		return nil
	}

	if _, err := b.control(bridgeproto.IDDisable, nil); err != nil {
		b.log.Debug("disable not acknowledged", "error", err)
	}

	b.wmu.Lock()
	b.conn = nil
	b.wmu.Unlock()
	err := conn.Close()
	<-b.done
	return err
}

func (b *Bridge) SetAddress(addr uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := b.control(bridgeproto.IDAddress, []byte{addr})
	return err
}

func (b *Bridge) SetFrequency(hz uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.freq = hz
	return b.configure()
}

func (b *Bridge) SetTimeout(timeout time.Duration, resetOnTimeout bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = timeout
	b.reset = resetOnTimeout
	if err := b.configure(); err != nil {
		b.log.Debug("timeout not applied", "error", err)
	}
}

func (b *Bridge) ManageTimeoutFlag(clear bool) bool {
	return b.flag.manage(clear)
}

func (b *Bridge) OnSlaveTransmit(fn func()) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	b.onTransmit = fn
}

func (b *Bridge) OnSlaveReceive(fn func(p []byte)) {
	b.hmu.Lock()
	defer b.hmu.Unlock()
	b.onReceive = fn
}

// SlaveTransmit отправляет ответ мостом; допустим только внутри обработчика запроса мастера.
func (b *Bridge) SlaveTransmit(p []byte) error {
	if !b.replying.Load() {
		return wire.ErrNotSlaveTransmitter
	}
	if len(p) > wire.BufferLength {
		return wire.ErrDataTooLong
	}
	return b.send(bridgeproto.ClassSlave, bridgeproto.IDReply, p)
}

func (b *Bridge) BlockingWrite(addr uint8, p []byte, wait, sendStop bool) wire.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload := make([]byte, 0, 2+len(p))
	payload = append(payload, addr, stopFlag(sendStop))
	payload = append(payload, p...)

	f, err := b.roundTrip(bridgeproto.IDWrite, payload, b.timeout)
	return b.status(addr, f, err)
}

func (b *Bridge) BlockingRead(addr uint8, p []byte, sendStop bool) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload := []byte{addr, stopFlag(sendStop), 0, 0}
	binary.LittleEndian.PutUint16(payload[2:], uint16(len(p)))

	f, err := b.roundTrip(bridgeproto.IDRead, payload, b.timeout)
	if st := b.status(addr, f, err); st != wire.StatusSuccess {
		return 0
	}
	return copy(p, f.Payload[1:])
}

// status разбирает ответ моста: первый байт payload — код статуса. Вызывается под b.mu.
func (b *Bridge) status(addr uint8, f bridgeproto.Frame, err error) wire.Status {
	var st wire.Status
	switch {
	case errors.Is(err, wire.ErrTimeout):
		st = wire.StatusTimeout
	case err != nil:
		b.log.Debug("bridge request failed", "address", addr, "error", err)
		return wire.StatusOther
	case len(f.Payload) == 0:
		return wire.StatusOther
	default:
		st = wire.Status(f.Payload[0])
	}
	if st == wire.StatusTimeout {
		b.onTimeout(addr)
	}
	return st
}

// onTimeout выставляет флаг и при необходимости сбрасывает шину моста. Вызывается под b.mu.
func (b *Bridge) onTimeout(addr uint8) {
	b.flag.set()
	b.log.Warn("bus timeout", "address", addr)
	if !b.reset {
		return
	}
	if _, err := b.control(bridgeproto.IDReset, nil); err != nil {
		b.log.Error("bridge reset", "error", err)
	}
}

// configure передаёт мосту частоту, таймаут и флаги. Вызывается под b.mu.
func (b *Bridge) configure() error {
	b.wmu.Lock()
	open := b.conn != nil
	b.wmu.Unlock()
	if !open {
		return nil
	}

	payload := make([]byte, 9)
	binary.LittleEndian.PutUint32(payload[0:], b.freq)
	binary.LittleEndian.PutUint32(payload[4:], uint32(b.timeout/time.Microsecond))
	if b.reset {
		payload[8] |= bridgeproto.FlagReset
	}
	_, err := b.control(bridgeproto.IDConfig, payload)
	return err
}

// control выполняет служебный запрос и проверяет статус. Вызывается под b.mu.
func (b *Bridge) control(id uint8, payload []byte) (bridgeproto.Frame, error) {
	timeout := b.timeout
	if timeout < controlTimeout {
		timeout = controlTimeout
	}
	f, err := b.roundTrip(id, payload, timeout)
	if err != nil {
		return f, err
	}
	if len(f.Payload) == 0 {
		return f, wire.ErrBus
	}
	if err := wire.Status(f.Payload[0]).Err(); err != nil {
		return f, err
	}
	return f, nil
}

// roundTrip отправляет запрос мастера с новым seq и ждёт ответ с тем же ID и seq: ответы на
// прежние запросы, пришедшие после их таймаута, отбрасываются. Возвращает payload ответа без
// seq. При timeout 0 ждёт без ограничения, пока мост не закрыт. Вызывается под b.mu.
func (b *Bridge) roundTrip(id uint8, payload []byte, timeout time.Duration) (bridgeproto.Frame, error) {
	if b.resp == nil {
		return bridgeproto.Frame{}, errBridgeClosed
	}
	// ответ на прошлый запрос, пришедший после таймаута
	select {
	case f := <-b.resp:
		b.log.Debug("stale response dropped", "frame", f.String())
	default:
	}

	b.seq++
	seq := b.seq
	req := make([]byte, 0, 1+len(payload))
	req = append(req, seq)
	req = append(req, payload...)
	if err := b.send(bridgeproto.ClassMaster, id, req); err != nil {
		return bridgeproto.Frame{}, err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	for {
		select {
		case f := <-b.resp:
			if f.ID != id || len(f.Payload) == 0 || f.Payload[0] != seq {
				b.log.Debug("stale response dropped", "frame", f.String(), "seq", seq)
				continue
			}
			f.Payload = f.Payload[1:]
			return f, nil
		case <-expired:
			return bridgeproto.Frame{}, wire.ErrTimeout
		case <-b.done:
			return bridgeproto.Frame{}, errBridgeClosed
		}
	}
}

func (b *Bridge) send(class, id uint8, payload []byte) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if b.conn == nil {
		return errBridgeClosed
	}
	_, err := b.conn.Write(bridgeproto.Encode(class, id, payload))
	return err
}

func (b *Bridge) readLoop(conn io.Reader, resp chan bridgeproto.Frame, done chan<- struct{}) {
	defer close(done)
	for {
		f, err := bridgeproto.ReadFrame(conn)
		if err != nil {
			if isFrameError(err) {
				b.log.Debug("bad frame skipped", "error", err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				b.log.Error("bridge read", "error", err)
			}
			return
		}

		switch f.Class {
		case bridgeproto.ClassMaster:
			select {
			case resp <- f:
			default:
				// в канале лежит непрочитанный устаревший ответ: новый важнее
				select {
				case old := <-resp:
					b.log.Debug("response dropped", "frame", old.String())
				default:
				}
				resp <- f
			}
		case bridgeproto.ClassSlave:
			b.slaveEvent(f)
		default:
			b.log.Debug("unknown frame", "frame", f.String())
		}
	}
}

// slaveEvent вызывает обработчики slave на горутине чтения.
func (b *Bridge) slaveEvent(f bridgeproto.Frame) {
	b.hmu.Lock()
	onTransmit, onReceive := b.onTransmit, b.onReceive
	b.hmu.Unlock()

	switch f.ID {
	case bridgeproto.IDReceive:
		if onReceive != nil {
			onReceive(f.Payload)
		}
	case bridgeproto.IDRequest:
		b.replying.Store(true)
		if onTransmit != nil {
			onTransmit()
		}
		b.replying.Store(false)
		if err := b.send(bridgeproto.ClassSlave, bridgeproto.IDDone, nil); err != nil {
			b.log.Error("slave reply", "error", err)
		}
	default:
		b.log.Debug("unknown slave event", "frame", f.String())
	}
}

func isFrameError(err error) bool {
	return errors.Is(err, bridgeproto.ErrChecksum) ||
		errors.Is(err, bridgeproto.ErrShort) ||
		errors.Is(err, bridgeproto.ErrTooLarge) ||
		errors.Is(err, bridgeproto.ErrBadSync)
}

func stopFlag(sendStop bool) byte {
	if sendStop {
		return bridgeproto.FlagStop
	}
	return 0
}
