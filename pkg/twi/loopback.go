package twi

import (
	"sync"
	"time"

	"github.com/shiwa/twowire/pkg/wire"
)

// Target — устройство на шине Loopback.
type Target interface {
	// Receive получает байты записи мастера; false означает NACK данных.
	Receive(p []byte) bool
	// Respond заполняет p ответом на чтение и возвращает число байт.
	Respond(p []byte) int
}

// Transfer — одна передача, увиденная шиной Loopback.
type Transfer struct {
	Addr   uint8
	Read   bool
	Data   []byte
	Stop   bool
	Status wire.Status
}

// Loopback — шина в памяти: мастер общается с подключёнными Target, а внешний мастер
// имитируется через MasterWrite/MasterRead. Обработчики slave вызываются синхронно.
type Loopback struct {
	mu        sync.Mutex
	targets   map[uint8]Target
	stalled   map[uint8]bool
	transfers []Transfer

	enabled  bool
	held     bool
	freq     uint32
	timeout  time.Duration
	reset    bool
	resets   int
	flag     stickyFlag
	slave    uint8
	hasSlave bool

	onTransmit func()
	onReceive  func(p []byte)
	replying   bool
	reply      []byte
}

var _ wire.Transport = (*Loopback)(nil)

func NewLoopback() *Loopback {
	return &Loopback{
		targets: make(map[uint8]Target),
		stalled: make(map[uint8]bool),
	}
}

// Attach подключает t по адресу addr.
func (l *Loopback) Attach(addr uint8, t Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.targets[addr] = t
}

// Stall заставляет передачи на addr завершаться таймаутом.
func (l *Loopback) Stall(addr uint8, on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stalled[addr] = on
}

// Transfers возвращает копию журнала передач.
func (l *Loopback) Transfers() []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transfer(nil), l.transfers...)
}

// Held сообщает, удерживается ли шина после передачи без stop.
func (l *Loopback) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Resets возвращает число переинициализаций шины после таймаутов.
func (l *Loopback) Resets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resets
}

func (l *Loopback) Frequency() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freq
}

func (l *Loopback) Init() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
	l.held = false
	return nil
}

func (l *Loopback) Disable() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
	l.hasSlave = false
	return nil
}

func (l *Loopback) SetAddress(addr uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slave = addr
	l.hasSlave = true
	return nil
}

func (l *Loopback) SetFrequency(hz uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.freq = hz
	return nil
}

func (l *Loopback) SetTimeout(timeout time.Duration, resetOnTimeout bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timeout = timeout
	l.reset = resetOnTimeout
}

func (l *Loopback) ManageTimeoutFlag(clear bool) bool {
	return l.flag.manage(clear)
}

func (l *Loopback) OnSlaveTransmit(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onTransmit = fn
}

func (l *Loopback) OnSlaveReceive(fn func(p []byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onReceive = fn
}

// lookup выбирает устройство по адресу; при остановленном адресе отмечает таймаут.
// Вызывается под l.mu.
func (l *Loopback) lookup(addr uint8) (Target, wire.Status) {
	if !l.enabled {
		return nil, wire.StatusOther
	}
	if l.stalled[addr] {
		l.flag.set()
		if l.reset {
			l.resets++
			l.held = false
		}
		return nil, wire.StatusTimeout
	}
	t, ok := l.targets[addr]
	if !ok {
		return nil, wire.StatusAddressNACK
	}
	return t, wire.StatusSuccess
}

func (l *Loopback) BlockingWrite(addr uint8, p []byte, wait, sendStop bool) wire.Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := wire.StatusSuccess
	if len(p) > wire.BufferLength {
		st = wire.StatusDataTooLong
	} else if t, s := l.lookup(addr); s != wire.StatusSuccess {
		st = s
	} else if !t.Receive(p) {
		st = wire.StatusDataNACK
	}

	l.transfers = append(l.transfers, Transfer{
		Addr:   addr,
		Data:   append([]byte(nil), p...),
		Stop:   sendStop,
		Status: st,
	})
	l.held = st == wire.StatusSuccess && !sendStop
	return st
}

func (l *Loopback) BlockingRead(addr uint8, p []byte, sendStop bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	t, st := l.lookup(addr)
	if st == wire.StatusSuccess {
		n = t.Respond(p)
	}

	l.transfers = append(l.transfers, Transfer{
		Addr:   addr,
		Read:   true,
		Data:   append([]byte(nil), p[:n]...),
		Stop:   sendStop,
		Status: st,
	})
	l.held = st == wire.StatusSuccess && !sendStop
	return n
}

// SlaveTransmit копит ответ внешнему мастеру; допустим только внутри MasterRead.
func (l *Loopback) SlaveTransmit(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.replying {
		return wire.ErrNotSlaveTransmitter
	}
	if len(l.reply)+len(p) > wire.BufferLength {
		return wire.ErrDataTooLong
	}
	l.reply = append(l.reply, p...)
	return nil
}

// MasterWrite имитирует запись внешнего мастера в это устройство.
// Возвращает false, если устройство не занимает slave-адрес.
func (l *Loopback) MasterWrite(p []byte) bool {
	l.mu.Lock()
	fn := l.onReceive
	ok := l.enabled && l.hasSlave
	l.mu.Unlock()

	if !ok {
		return false
	}
	if fn != nil {
		fn(append([]byte(nil), p...))
	}
	return true
}

// MasterRead имитирует чтение внешним мастером до n байт из этого устройства.
func (l *Loopback) MasterRead(n int) []byte {
	l.mu.Lock()
	fn := l.onTransmit
	ok := l.enabled && l.hasSlave
	l.replying = true
	l.reply = l.reply[:0]
	l.mu.Unlock()

	if ok && fn != nil {
		fn()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.replying = false
	if !ok {
		return nil
	}
	if n > len(l.reply) {
		n = len(l.reply)
	}
	return append([]byte(nil), l.reply[:n]...)
}

// MemoryTarget — память с указателем адреса длиной AddrBytes (как EEPROM 24Cxx или
// регистровое устройство). Указатель автоматически увеличивается и заворачивается по размеру.
type MemoryTarget struct {
	mu        sync.Mutex
	mem       []byte
	ptr       int
	addrBytes int
}

// NewMemoryTarget создаёт память size байт с указателем addrBytes байт (1 или 2).
// При size <= 0 устройство подтверждает запись, но ничего не хранит и не отдаёт.
func NewMemoryTarget(size, addrBytes int) *MemoryTarget {
	return &MemoryTarget{
		mem:       make([]byte, max(size, 0)),
		addrBytes: addrBytes,
	}
}

func (m *MemoryTarget) Receive(p []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(p) < m.addrBytes || len(m.mem) == 0 {
		// пустая запись (проверка адреса), неполный указатель или память нулевого размера
		return true
	}
	ptr := 0
	for _, b := range p[:m.addrBytes] {
		ptr = ptr<<8 | int(b)
	}
	m.ptr = ptr % len(m.mem)
	for _, b := range p[m.addrBytes:] {
		m.mem[m.ptr] = b
		m.ptr = (m.ptr + 1) % len(m.mem)
	}
	return true
}

func (m *MemoryTarget) Respond(p []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.mem) == 0 {
		return 0
	}
	for i := range p {
		p[i] = m.mem[m.ptr]
		m.ptr = (m.ptr + 1) % len(m.mem)
	}
	return len(p)
}

// Bytes возвращает копию содержимого памяти.
func (m *MemoryTarget) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.mem...)
}

// Fill заполняет память значением b.
func (m *MemoryTarget) Fill(b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.mem {
		m.mem[i] = b
	}
}
