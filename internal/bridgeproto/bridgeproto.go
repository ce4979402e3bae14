// Package bridgeproto — кадры последовательного моста I2C: sync, class, id, длина, payload,
// CRC-32 (IEEE) по class..payload.
package bridgeproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Sync bytes кадра; отличаются от UBX (0xB5 0x62), чтобы поток GNSS на том же порту
// не принимался за кадры моста.
const (
	Sync1 = 0x5A
	Sync2 = 0xC3
)

// HeaderSize — sync(2) + class + id + length(2)
const HeaderSize = 6

// TrailerSize — CRC-32 (le32) после payload
const TrailerSize = 4

// MaxPayload ограничивает длину payload, чтобы битый заголовок не приводил к большим аллокациям.
const MaxPayload = 512

// Классы и ID сообщений. Payload запроса мастера и ответа на него начинается с байта
// последовательности seq: мост повторяет seq запроса в ответе.
const (
	ClassMaster = 0x01
	IDWrite     = 0x01 // host→bridge: seq, addr, flags, data; ответ: seq, status
	IDRead      = 0x02 // host→bridge: seq, addr, flags, n(le16); ответ: seq, status, data
	IDConfig    = 0x03 // host→bridge: seq, freq(le32), timeout µs(le32), flags; ответ: seq, status
	IDAddress   = 0x04 // host→bridge: seq, собственный slave-адрес; ответ: seq, status
	IDReset     = 0x05 // host→bridge: seq; переинициализация шины; ответ: seq, status
	IDDisable   = 0x06 // host→bridge: seq; отключение шины; ответ: seq, status

	ClassSlave = 0x02
	IDReceive  = 0x01 // bridge→host: внешний мастер записал data
	IDRequest  = 0x02 // bridge→host: внешний мастер читает
	IDReply    = 0x03 // host→bridge: ответные байты
	IDDone     = 0x04 // host→bridge: ответ на IDRequest завершён
)

// Flags в payload запросов мастера
const (
	FlagStop  = 0x01
	FlagReset = 0x02
)

var (
	ErrChecksum = errors.New("bridgeproto: crc mismatch")
	ErrShort    = errors.New("bridgeproto: short frame")
	ErrTooLarge = errors.New("bridgeproto: payload too large")
	ErrBadSync  = errors.New("bridgeproto: bad sync")
)

// Frame — разобранный кадр.
type Frame struct {
	Class   uint8
	ID      uint8
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("frame %#02x/%#02x len=%d", f.Class, f.ID, len(f.Payload))
}

// Is сообщает, совпадают ли class и id.
func (f Frame) Is(class, id uint8) bool {
	return f.Class == class && f.ID == id
}

// Encode собирает кадр: header + payload + crc
func Encode(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload)+TrailerSize)
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf[2:]))
}

// Decode разбирает целый кадр и проверяет CRC.
func Decode(packet []byte) (Frame, error) {
	if len(packet) < HeaderSize+TrailerSize {
		return Frame{}, ErrShort
	}
	if packet[0] != Sync1 || packet[1] != Sync2 {
		return Frame{}, ErrBadSync
	}
	length := int(binary.LittleEndian.Uint16(packet[4:6]))
	end := HeaderSize + length
	if len(packet) != end+TrailerSize {
		return Frame{}, ErrShort
	}
	if binary.LittleEndian.Uint32(packet[end:]) != crc32.ChecksumIEEE(packet[2:end]) {
		return Frame{}, ErrChecksum
	}
	return Frame{
		Class:   packet[2],
		ID:      packet[3],
		Payload: packet[HeaderSize:end],
	}, nil
}

// ReadFrame читает один кадр из r: ждёт sync, затем заголовок, затем payload и CRC.
func ReadFrame(r io.Reader) (Frame, error) {
	var prev, cur [1]byte
	for {
		if _, err := io.ReadFull(r, cur[:]); err != nil {
			return Frame{}, err
		}
		if prev[0] == Sync1 && cur[0] == Sync2 {
			break
		}
		prev = cur
	}

	// class, id, length[2]
	header := make([]byte, HeaderSize-2)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}
	length := int(binary.LittleEndian.Uint16(header[2:4]))
	if length > MaxPayload {
		return Frame{}, fmt.Errorf("%w: %d", ErrTooLarge, length)
	}

	packet := make([]byte, 0, HeaderSize+length+TrailerSize)
	packet = append(packet, Sync1, Sync2)
	packet = append(packet, header...)
	rest := make([]byte, length+TrailerSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, err
	}
	packet = append(packet, rest...)
	return Decode(packet)
}
