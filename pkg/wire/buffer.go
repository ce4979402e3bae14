package wire

// BufferLength — ёмкость каждого буфера (передача и приём), общая для всех ролей.
const BufferLength = 32

// buffer — буфер фиксированной ёмкости с курсором чтения.
// Инвариант: 0 <= cursor <= length <= BufferLength.
type buffer struct {
	data   [BufferLength]byte
	cursor int
	length int
}

func (b *buffer) reset() {
	b.cursor = 0
	b.length = 0
}

// put дописывает байт; при заполненном буфере байт отбрасывается.
func (b *buffer) put(c byte) error {
	if b.length >= BufferLength {
		return ErrBufferFull
	}
	b.data[b.length] = c
	b.length++
	return nil
}

func (b *buffer) next() (byte, bool) {
	if b.cursor >= b.length {
		return 0, false
	}
	c := b.data[b.cursor]
	b.cursor++
	return c, true
}

func (b *buffer) peek() (byte, bool) {
	if b.cursor >= b.length {
		return 0, false
	}
	return b.data[b.cursor], true
}

func (b *buffer) remaining() int {
	return b.length - b.cursor
}

// fill заменяет содержимое буфера на p (не больше BufferLength байт) и сбрасывает курсор.
func (b *buffer) fill(p []byte) int {
	n := copy(b.data[:], p)
	b.cursor = 0
	b.length = n
	return n
}

// bytes возвращает накопленные байты [0, length).
func (b *buffer) bytes() []byte {
	return b.data[:b.length]
}
