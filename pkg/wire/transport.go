package wire

import (
	"errors"
	"time"
)

// Transport — низкоуровневый драйвер шины (генерация клока, ACK/NACK, прерывания).
// Блокирующие операции не возвращаются, пока передача не завершится или не истечёт таймаут.
type Transport interface {
	Init() error
	Disable() error
	// SetAddress задаёт собственный адрес устройства в роли slave.
	SetAddress(addr uint8) error
	SetFrequency(hz uint32) error
	SetTimeout(timeout time.Duration, resetOnTimeout bool)
	// ManageTimeoutFlag возвращает sticky-флаг таймаута и при clear сбрасывает его.
	ManageTimeoutFlag(clear bool) bool
	// BlockingWrite передаёт p по адресу addr. sendStop=false оставляет шину занятой (repeated start).
	BlockingWrite(addr uint8, p []byte, wait, sendStop bool) Status
	// BlockingRead читает до len(p) байт и возвращает фактически прочитанное количество.
	BlockingRead(addr uint8, p []byte, sendStop bool) int
	// SlaveTransmit немедленно отвечает мастеру, пока устройство в роли slave-передатчика.
	SlaveTransmit(p []byte) error
	OnSlaveTransmit(fn func())
	OnSlaveReceive(fn func(p []byte))
}

// Status — код результата BlockingWrite; таксономию задаёт драйвер, ядро передаёт её как есть.
type Status uint8

const (
	StatusSuccess Status = iota
	StatusDataTooLong
	StatusAddressNACK
	StatusDataNACK
	StatusOther
	StatusTimeout
)

var (
	ErrBufferFull          = errors.New("wire: buffer full")
	ErrDataTooLong         = errors.New("wire: data too long")
	ErrAddressNACK         = errors.New("wire: address not acknowledged")
	ErrDataNACK            = errors.New("wire: data not acknowledged")
	ErrBus                 = errors.New("wire: bus error")
	ErrTimeout             = errors.New("wire: timeout")
	ErrNotSlaveTransmitter = errors.New("wire: not in slave transmit mode")
	ErrSlaveUnsupported    = errors.New("wire: slave mode not supported by transport")
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusDataTooLong:
		return "data too long"
	case StatusAddressNACK:
		return "address nack"
	case StatusDataNACK:
		return "data nack"
	case StatusOther:
		return "other"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Err возвращает sentinel-ошибку для кода или nil для StatusSuccess.
func (s Status) Err() error {
	switch s {
	case StatusSuccess:
		return nil
	case StatusDataTooLong:
		return ErrDataTooLong
	case StatusAddressNACK:
		return ErrAddressNACK
	case StatusDataNACK:
		return ErrDataNACK
	case StatusTimeout:
		return ErrTimeout
	default:
		return ErrBus
	}
}

// OK возвращает true для StatusSuccess.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// disconnected — транспорт без шины: любой адрес не отвечает.
type disconnected struct{}

func (disconnected) Init() error                          { return nil }
func (disconnected) Disable() error                       { return nil }
func (disconnected) SetAddress(uint8) error               { return ErrSlaveUnsupported }
func (disconnected) SetFrequency(uint32) error            { return nil }
func (disconnected) SetTimeout(time.Duration, bool)       {}
func (disconnected) ManageTimeoutFlag(bool) bool          { return false }
func (disconnected) SlaveTransmit([]byte) error           { return ErrNotSlaveTransmitter }
func (disconnected) OnSlaveTransmit(func())               {}
func (disconnected) OnSlaveReceive(func([]byte))          {}
func (disconnected) BlockingRead(uint8, []byte, bool) int { return 0 }

func (disconnected) BlockingWrite(uint8, []byte, bool, bool) Status {
	return StatusAddressNACK
}
