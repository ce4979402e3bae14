package twi

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shiwa/twowire/internal/bridgeproto"
	"github.com/shiwa/twowire/pkg/wire"
)

// firmware имитирует микроконтроллер моста на другом конце соединения.
type firmware struct {
	conn  net.Conn
	addr  uint8
	stall uint8
	late  uint8 // ответ на чтение отправляется только вместе со следующим чтением
	mem   *MemoryTarget

	mu      sync.Mutex
	config  []byte
	slave   uint8
	resets  atomic.Int32
	reply   []byte
	replies chan []byte
	wmu     sync.Mutex

	lateReads int
	pending   []byte
}

func newFirmware(t *testing.T) (*firmware, *Bridge) {
	t.Helper()
	host, dev := net.Pipe()
	f := &firmware{
		conn:    dev,
		addr:    0x50,
		stall:   0x77,
		late:    0x51,
		mem:     NewMemoryTarget(256, 1),
		replies: make(chan []byte, 4),
	}
	go f.serve()
	t.Cleanup(func() { dev.Close() })
	return f, NewBridgeConn(host, nil)
}

func (f *firmware) send(class, id uint8, payload []byte) {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	f.conn.Write(bridgeproto.Encode(class, id, payload))
}

// respond отвечает на запрос мастера, повторяя его seq.
func (f *firmware) respond(id, seq uint8, payload ...byte) {
	f.send(bridgeproto.ClassMaster, id, append([]byte{seq}, payload...))
}

func (f *firmware) serve() {
	for {
		fr, err := bridgeproto.ReadFrame(f.conn)
		if err != nil {
			return
		}
		var seq uint8
		p := fr.Payload
		if fr.Class == bridgeproto.ClassMaster {
			seq, p = p[0], p[1:]
		}
		switch {
		case fr.Is(bridgeproto.ClassMaster, bridgeproto.IDWrite):
			switch p[0] {
			case f.stall:
			case f.addr:
				f.mem.Receive(p[2:])
				f.respond(fr.ID, seq, byte(wire.StatusSuccess))
			default:
				f.respond(fr.ID, seq, byte(wire.StatusAddressNACK))
			}
		case fr.Is(bridgeproto.ClassMaster, bridgeproto.IDRead):
			n := binary.LittleEndian.Uint16(p[2:4])
			switch p[0] {
			case f.stall:
			case f.late:
				// ответ каждого чтения заполнен 0xa0+номер; первый задерживается до второго запроса
				f.lateReads++
				buf := bytes.Repeat([]byte{0xa0 + byte(f.lateReads)}, int(n))
				frame := bridgeproto.Encode(bridgeproto.ClassMaster, fr.ID,
					append([]byte{seq, byte(wire.StatusSuccess)}, buf...))
				if f.pending == nil {
					f.pending = frame
					continue
				}
				f.wmu.Lock()
				f.conn.Write(f.pending)
				f.conn.Write(frame)
				f.wmu.Unlock()
				f.pending = nil
			case f.addr:
				buf := make([]byte, n)
				f.mem.Respond(buf)
				f.respond(fr.ID, seq, append([]byte{byte(wire.StatusSuccess)}, buf...)...)
			default:
				f.respond(fr.ID, seq, byte(wire.StatusAddressNACK))
			}
		case fr.Is(bridgeproto.ClassMaster, bridgeproto.IDConfig):
			f.mu.Lock()
			f.config = p
			f.mu.Unlock()
			f.respond(fr.ID, seq, byte(wire.StatusSuccess))
		case fr.Is(bridgeproto.ClassMaster, bridgeproto.IDAddress):
			f.mu.Lock()
			f.slave = p[0]
			f.mu.Unlock()
			f.respond(fr.ID, seq, byte(wire.StatusSuccess))
		case fr.Is(bridgeproto.ClassMaster, bridgeproto.IDReset):
			f.resets.Add(1)
			f.respond(fr.ID, seq, byte(wire.StatusSuccess))
		case fr.Is(bridgeproto.ClassMaster, bridgeproto.IDDisable):
			f.respond(fr.ID, seq, byte(wire.StatusSuccess))
		case fr.Is(bridgeproto.ClassSlave, bridgeproto.IDReply):
			f.reply = append(f.reply, p...)
		case fr.Is(bridgeproto.ClassSlave, bridgeproto.IDDone):
			f.replies <- f.reply
			f.reply = nil
		}
	}
}

func (f *firmware) lastConfig() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config
}

func TestBridgeConfig(t *testing.T) {
	f, b := newFirmware(t)
	c := wire.New(wire.DefaultConfig, b)
	if err := c.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer c.End()

	cfg := f.lastConfig()
	if len(cfg) != 9 {
		t.Fatalf("config payload = % x", cfg)
	}
	if hz := binary.LittleEndian.Uint32(cfg[0:]); hz != 100000 {
		t.Errorf("freq = %d", hz)
	}
	if us := binary.LittleEndian.Uint32(cfg[4:]); us != 25000 {
		t.Errorf("timeout = %d µs", us)
	}

	if err := c.SetClock(400000); err != nil {
		t.Fatalf("SetClock: %v", err)
	}
	if hz := binary.LittleEndian.Uint32(f.lastConfig()); hz != 400000 {
		t.Errorf("freq after SetClock = %d", hz)
	}
}

func TestBridgeMasterWriteRead(t *testing.T) {
	f, b := newFirmware(t)
	c := wire.New(wire.DefaultConfig, b)
	if err := c.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer c.End()

	c.BeginTransmission(0x50)
	c.Write([]byte{0x10, 'a', 'b', 'c'})
	if st := c.EndTransmission(); st != wire.StatusSuccess {
		t.Fatalf("EndTransmission = %v", st)
	}
	if got := f.mem.Bytes()[0x10:0x13]; !bytes.Equal(got, []byte("abc")) {
		t.Fatalf("memory = %q", got)
	}

	if n := c.RequestFromInternal(0x50, 3, 0x10, 1, true); n != 3 {
		t.Fatalf("RequestFromInternal = %d", n)
	}
	got := make([]byte, 3)
	c.Read(got)
	if !bytes.Equal(got, []byte("abc")) {
		t.Errorf("read = %q", got)
	}

	c.BeginTransmission(0x21)
	if st := c.EndTransmission(); st != wire.StatusAddressNACK {
		t.Errorf("missing device: %v", st)
	}
	if n := c.RequestFrom(0x21, 4); n != 0 {
		t.Errorf("read missing device = %d", n)
	}
}

func TestBridgeTimeout(t *testing.T) {
	f, b := newFirmware(t)
	conf := wire.DefaultConfig
	conf.Timeout = 20 * time.Millisecond
	conf.ResetOnTimeout = true
	c := wire.New(conf, b)
	if err := c.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer c.End()

	c.BeginTransmission(0x77)
	c.WriteByte(0x01)
	if st := c.EndTransmission(); st != wire.StatusTimeout {
		t.Fatalf("EndTransmission = %v", st)
	}
	if !c.WireTimeoutFlag() {
		t.Error("timeout flag not set")
	}
	if n := f.resets.Load(); n != 1 {
		t.Errorf("resets = %d", n)
	}

	// после таймаута мост продолжает работать
	c.ClearWireTimeoutFlag()
	c.BeginTransmission(0x50)
	if st := c.EndTransmission(); st != wire.StatusSuccess {
		t.Errorf("after timeout: %v", st)
	}
	if c.WireTimeoutFlag() {
		t.Error("flag set again")
	}
}

func TestBridgeLateResponseDropped(t *testing.T) {
	_, b := newFirmware(t)
	conf := wire.DefaultConfig
	conf.Timeout = 20 * time.Millisecond
	c := wire.New(conf, b)
	if err := c.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer c.End()

	if n := c.RequestFrom(0x51, 2); n != 0 {
		t.Fatalf("first read = %d, want timeout", n)
	}
	if !c.WireTimeoutFlag() {
		t.Error("timeout flag not set")
	}

	// ответ на первое чтение приходит перед ответом на второе
	if n := c.RequestFrom(0x51, 2); n != 2 {
		t.Fatalf("second read = %d", n)
	}
	got := make([]byte, 2)
	c.Read(got)
	if !bytes.Equal(got, []byte{0xa2, 0xa2}) {
		t.Errorf("second read = % x, want a2 a2", got)
	}

	// канал ответов пуст: следующий запрос получает свой статус
	c.BeginTransmission(0x21)
	if st := c.EndTransmission(); st != wire.StatusAddressNACK {
		t.Errorf("write after late response = %v", st)
	}
}

func TestBridgeSlave(t *testing.T) {
	f, b := newFirmware(t)
	c := wire.New(wire.DefaultConfig, b)

	received := make(chan []byte, 1)
	c.OnReceive(func(n int) {
		p := make([]byte, n)
		c.Read(p)
		received <- p
	})
	c.OnRequest(func() {
		c.Write([]byte("pong"))
	})
	if err := c.BeginSlave(0x42); err != nil {
		t.Fatalf("BeginSlave: %v", err)
	}
	defer c.End()

	f.mu.Lock()
	slave := f.slave
	f.mu.Unlock()
	if slave != 0x42 {
		t.Errorf("slave address = %#x", slave)
	}

	f.send(bridgeproto.ClassSlave, bridgeproto.IDReceive, []byte("ping"))
	select {
	case p := <-received:
		if string(p) != "ping" {
			t.Errorf("received %q", p)
		}
	case <-time.After(time.Second):
		t.Fatal("receive handler not called")
	}

	f.send(bridgeproto.ClassSlave, bridgeproto.IDRequest, nil)
	select {
	case p := <-f.replies:
		if string(p) != "pong" {
			t.Errorf("reply %q", p)
		}
	case <-time.After(time.Second):
		t.Fatal("no reply")
	}
}

func TestBridgeSlaveTransmitOutsideRequest(t *testing.T) {
	_, b := newFirmware(t)
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer b.Disable()
	if err := b.SlaveTransmit([]byte{1}); err != wire.ErrNotSlaveTransmitter {
		t.Errorf("SlaveTransmit = %v", err)
	}
}

func TestBridgeClosed(t *testing.T) {
	_, b := newFirmware(t)
	if err := b.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := b.Disable(); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if st := b.BlockingWrite(0x50, nil, true, true); st != wire.StatusOther {
		t.Errorf("write after Disable = %v", st)
	}
}
