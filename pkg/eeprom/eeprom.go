// Package eeprom — последовательные EEPROM 24Cxx поверх wire.Controller как
// io.Reader, io.Writer и io.Seeker.
package eeprom

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shiwa/twowire/pkg/wire"
)

// Config описывает микросхему. При AddrBytes == 1 и Size > 256 старшие биты адреса
// ячейки передаются в адресе устройства (24C04..24C16).
type Config struct {
	Size       int
	PageSize   int
	AddrBytes  int
	WriteDelay time.Duration
}

var (
	Conf24C02 = Config{Size: 256, PageSize: 8, AddrBytes: 1, WriteDelay: 5 * time.Millisecond}
	Conf24C16 = Config{Size: 2048, PageSize: 16, AddrBytes: 1, WriteDelay: 5 * time.Millisecond}
	Conf24C32 = Config{Size: 4096, PageSize: 32, AddrBytes: 2, WriteDelay: 5 * time.Millisecond}
)

// ErrNoResponse — микросхема не вернула запрошенные байты.
var ErrNoResponse = errors.New("eeprom: no response")

// EEPROM — микросхема 24Cxx с файловым указателем.
type EEPROM struct {
	conf Config
	c    *wire.Controller
	addr uint8
	pos  int
}

var _ io.ReadWriteSeeker = (*EEPROM)(nil)

// New проверяет конфигурацию и возвращает EEPROM по адресу addr.
func New(c *wire.Controller, addr uint8, conf Config) (*EEPROM, error) {
	if addr > 0x7f {
		return nil, fmt.Errorf("eeprom: address %#x out of 7-bit range", addr)
	}
	if conf.Size <= 0 || conf.PageSize <= 0 || conf.PageSize&(conf.PageSize-1) != 0 {
		return nil, fmt.Errorf("eeprom: invalid geometry size=%d page=%d", conf.Size, conf.PageSize)
	}
	switch conf.AddrBytes {
	case 1:
		if devices := (conf.Size + 255) / 256; int(addr)+devices-1 > 0x7f {
			return nil, fmt.Errorf("eeprom: %d bytes do not fit above address %#x", conf.Size, addr)
		}
	case 2:
		if conf.Size > 0x10000 {
			return nil, fmt.Errorf("eeprom: size %d needs more than 2 address bytes", conf.Size)
		}
	default:
		return nil, fmt.Errorf("eeprom: unsupported address size %d", conf.AddrBytes)
	}
	return &EEPROM{conf: conf, c: c, addr: addr}, nil
}

// locate возвращает адрес устройства и адрес ячейки для позиции pos.
func (e *EEPROM) locate(pos int) (uint8, uint32) {
	if e.conf.AddrBytes == 1 {
		return e.addr + uint8(pos>>8), uint32(pos & 0xff)
	}
	return e.addr, uint32(pos)
}

func (e *EEPROM) Read(p []byte) (int, error) {
	if e.pos >= e.conf.Size {
		return 0, io.EOF
	}
	if len(p) > e.conf.Size-e.pos {
		p = p[:e.conf.Size-e.pos]
	}

	total := 0
	for total < len(p) {
		chunk := min(len(p)-total, wire.BufferLength)
		if e.conf.AddrBytes == 1 {
			// адрес ячейки не переходит на следующее устройство
			chunk = min(chunk, 256-e.pos&0xff)
		}

		dev, word := e.locate(e.pos)
		got := e.c.RequestFromInternal(dev, chunk, word, e.conf.AddrBytes, true)
		n, _ := e.c.Read(p[total : total+got])
		total += n
		e.pos += n
		if n < chunk {
			return total, fmt.Errorf("%w at %#x", ErrNoResponse, e.pos)
		}
	}
	return total, nil
}

// Write пишет постранично: одна транзакция не пересекает границу страницы и не превышает
// буфер контроллера. После каждой страницы выдерживается WriteDelay.
func (e *EEPROM) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 && e.pos < e.conf.Size {
		inPage := e.conf.PageSize - e.pos&(e.conf.PageSize-1)
		n := min(len(p), inPage, wire.BufferLength-e.conf.AddrBytes)

		dev, word := e.locate(e.pos)
		e.c.BeginTransmission(dev)
		for i := e.conf.AddrBytes - 1; i >= 0; i-- {
			e.c.WriteByte(byte(word >> (8 * i)))
		}
		e.c.Write(p[:n])
		if st := e.c.EndTransmission(); st != wire.StatusSuccess {
			return total, fmt.Errorf("eeprom: write at %#x: %w", e.pos, st.Err())
		}
		if e.conf.WriteDelay > 0 {
			time.Sleep(e.conf.WriteDelay)
		}

		e.pos += n
		total += n
		p = p[n:]
	}
	if len(p) > 0 {
		// достигнут конец массива
		return total, io.EOF
	}
	return total, nil
}

func (e *EEPROM) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(e.pos) + offset
	case io.SeekEnd:
		pos = int64(e.conf.Size) + offset
	default:
		return int64(e.pos), errors.New("eeprom: invalid whence")
	}
	if pos < 0 {
		return int64(e.pos), errors.New("eeprom: negative position")
	}
	if pos > int64(e.conf.Size) {
		return int64(e.pos), errors.New("eeprom: position beyond end of array")
	}
	e.pos = int(pos)
	return pos, nil
}

// Size возвращает объём микросхемы в байтах.
func (e *EEPROM) Size() int {
	return e.conf.Size
}
