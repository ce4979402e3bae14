// Package wire — master/slave абстракция шины I2C (two-wire) поверх драйвера шины.
//
// Controller владеет двумя буферами фиксированной ёмкости (передача, приём), отслеживает
// состояние транзакции и передаёт асинхронные события slave-режима пользовательским обработчикам.
// Блокировок нет: устройство в каждый момент работает либо мастером, либо slave, и блокирующие
// вызовы мастера завершаются до обслуживания slave-событий той же роли буфера.
package wire

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// State — состояние контроллера; от него зависит поведение Write.
type State uint8

const (
	Idle          State = iota
	Transmitting        // после BeginTransmission: запись в буфер передачи
	SlaveReplying       // внутри обработчика OnRequest: запись сразу уходит мастеру
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transmitting:
		return "transmitting"
	case SlaveReplying:
		return "slave-replying"
	default:
		return "unknown"
	}
}

// ReceiveHandler вызывается, когда мастер записал n байт в это устройство.
type ReceiveHandler func(n int)

// RequestHandler вызывается, когда мастер читает из этого устройства; ответ пишется через Write.
type RequestHandler func()

type Config struct {
	// Clock — частота шины в Гц; 0 оставляет значение драйвера.
	Clock          uint32
	Timeout        time.Duration
	ResetOnTimeout bool
	Logger         *slog.Logger
}

var DefaultConfig = Config{
	Clock:   100000,
	Timeout: 25 * time.Millisecond,
}

// Controller — состояние одной шины: буферы, флаги, обработчики, драйвер.
type Controller struct {
	config    Config
	log       *slog.Logger
	transport Transport

	state     State
	txAddress uint8
	tx        buffer
	rx        buffer
	writeErr  bool

	onReceive ReceiveHandler
	onRequest RequestHandler
}

// New создаёт контроллер поверх transport. nil-транспорт означает шину без устройств.
func New(config Config, transport Transport) *Controller {
	if transport == nil {
		transport = disconnected{}
	}
	log := config.Logger
	if log == nil {
		log = slog.Default().With("component", "wire")
	}
	return &Controller{
		config:    config,
		log:       log,
		transport: transport,
	}
}

// Begin инициализирует драйвер в роли мастера и регистрирует обработчики slave-событий.
func (c *Controller) Begin() error {
	c.rx.reset()
	c.tx.reset()
	c.state = Idle

	if err := c.transport.Init(); err != nil {
		return fmt.Errorf("wire: init transport: %w", err)
	}
	c.transport.OnSlaveTransmit(c.handleRequest)
	c.transport.OnSlaveReceive(c.handleReceive)

	// не все драйверы умеют менять частоту; шина остаётся на частоте драйвера
	if c.config.Clock != 0 {
		if err := c.transport.SetFrequency(c.config.Clock); err != nil {
			c.log.Warn("clock not applied", "clock", c.config.Clock, "error", err)
		}
	}
	c.transport.SetTimeout(c.config.Timeout, c.config.ResetOnTimeout)

	c.log.Debug("begin", "clock", c.config.Clock, "timeout", c.config.Timeout)
	return nil
}

// BeginSlave выполняет Begin и занимает адрес addr в роли slave.
func (c *Controller) BeginSlave(addr uint8) error {
	if err := c.Begin(); err != nil {
		return err
	}
	if err := c.transport.SetAddress(addr); err != nil {
		return fmt.Errorf("wire: set slave address %#02x: %w", addr, err)
	}
	c.log.Debug("slave address set", "address", addr)
	return nil
}

// End отключает драйвер.
func (c *Controller) End() error {
	return c.transport.Disable()
}

func (c *Controller) SetClock(hz uint32) error {
	if err := c.transport.SetFrequency(hz); err != nil {
		return err
	}
	c.config.Clock = hz
	return nil
}

// SetWireTimeout задаёт таймаут передачи; 0 отключает его.
func (c *Controller) SetWireTimeout(timeout time.Duration, resetOnTimeout bool) {
	c.config.Timeout = timeout
	c.config.ResetOnTimeout = resetOnTimeout
	c.transport.SetTimeout(timeout, resetOnTimeout)
}

// WireTimeoutFlag сообщает, случался ли таймаут с момента последнего сброса флага.
func (c *Controller) WireTimeoutFlag() bool {
	return c.transport.ManageTimeoutFlag(false)
}

func (c *Controller) ClearWireTimeoutFlag() {
	c.transport.ManageTimeoutFlag(true)
}

// BeginTransmission начинает накопление байтов для записи по адресу addr.
// Повторный вызов до EndTransmission очищает буфер заново.
func (c *Controller) BeginTransmission(addr uint8) {
	c.state = Transmitting
	c.txAddress = addr
	c.tx.reset()
}

// WriteByte пишет один байт. В состоянии Transmitting байт буферизуется: при переполнении он
// отбрасывается, выставляется флаг WriteError и возвращается ErrBufferFull. В остальных состояниях
// байт сразу отправляется мастеру через драйвер.
func (c *Controller) WriteByte(b byte) error {
	if c.state == Transmitting {
		if err := c.tx.put(b); err != nil {
			c.writeErr = true
			return err
		}
		return nil
	}
	return c.transport.SlaveTransmit([]byte{b})
}

// Write пишет p по тем же правилам, что WriteByte. При переполнении возвращает число
// записанных байтов и ErrBufferFull; остаток отбрасывается.
func (c *Controller) Write(p []byte) (int, error) {
	if c.state == Transmitting {
		for i, b := range p {
			if err := c.tx.put(b); err != nil {
				c.writeErr = true
				return i, err
			}
		}
		return len(p), nil
	}
	if err := c.transport.SlaveTransmit(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EndTransmission отправляет накопленный буфер со stop-условием.
func (c *Controller) EndTransmission() Status {
	return c.EndTransmissionStop(true)
}

// EndTransmissionStop блокирующе отправляет накопленный буфер. sendStop=false оставляет шину
// занятой для repeated start. Буфер очищается, состояние возвращается в Idle при любом статусе.
func (c *Controller) EndTransmissionStop(sendStop bool) Status {
	st := c.transport.BlockingWrite(c.txAddress, c.tx.bytes(), true, sendStop)
	c.log.Debug("end transmission",
		"address", c.txAddress,
		"len", c.tx.length,
		"stop", sendStop,
		"status", st.String(),
	)
	c.tx.reset()
	c.state = Idle
	return st
}

// Available возвращает число непрочитанных байтов в буфере приёма.
func (c *Controller) Available() int {
	return c.rx.remaining()
}

// ReadByte возвращает следующий байт буфера приёма или io.EOF, если данных нет.
func (c *Controller) ReadByte() (byte, error) {
	b, ok := c.rx.next()
	if !ok {
		return 0, io.EOF
	}
	return b, nil
}

// PeekByte как ReadByte, но не сдвигает курсор.
func (c *Controller) PeekByte() (byte, error) {
	b, ok := c.rx.peek()
	if !ok {
		return 0, io.EOF
	}
	return b, nil
}

// Read выбирает из буфера приёма до len(p) байт.
func (c *Controller) Read(p []byte) (int, error) {
	if c.rx.remaining() == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.rx.data[c.rx.cursor:c.rx.length])
	c.rx.cursor += n
	return n, nil
}

// Flush ничего не делает: передача уже синхронная.
func (c *Controller) Flush() {}

// WriteError сообщает, терялись ли байты из-за переполнения буфера передачи.
func (c *Controller) WriteError() bool {
	return c.writeErr
}

func (c *Controller) ClearWriteError() {
	c.writeErr = false
}

// OnReceive задаёт обработчик записи мастера в это устройство.
func (c *Controller) OnReceive(fn ReceiveHandler) {
	c.onReceive = fn
}

// OnRequest задаёт обработчик чтения мастером из этого устройства.
func (c *Controller) OnRequest(fn RequestHandler) {
	c.onRequest = fn
}

func (c *Controller) State() State {
	return c.state
}
