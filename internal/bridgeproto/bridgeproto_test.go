package bridgeproto

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	payload := []byte{0x50, FlagStop, 0x12, 0x34}
	pkt := Encode(ClassMaster, IDWrite, payload)

	if len(pkt) != HeaderSize+len(payload)+TrailerSize {
		t.Fatalf("packet len %d", len(pkt))
	}
	f, err := Decode(pkt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !f.Is(ClassMaster, IDWrite) || !bytes.Equal(f.Payload, payload) {
		t.Errorf("got %v % x", f, f.Payload)
	}
}

func TestDecodeErrors(t *testing.T) {
	good := Encode(ClassSlave, IDReceive, []byte{1, 2, 3})

	t.Run("short", func(t *testing.T) {
		if _, err := Decode(good[:5]); !errors.Is(err, ErrShort) {
			t.Errorf("got %v, want ErrShort", err)
		}
	})
	t.Run("bad sync", func(t *testing.T) {
		b := append([]byte{0x00, 0x00}, good[2:]...)
		if _, err := Decode(b); !errors.Is(err, ErrBadSync) {
			t.Errorf("got %v, want ErrBadSync", err)
		}
	})
	t.Run("corrupt payload", func(t *testing.T) {
		b := append([]byte(nil), good...)
		b[HeaderSize] ^= 0xff
		if _, err := Decode(b); !errors.Is(err, ErrChecksum) {
			t.Errorf("got %v, want ErrChecksum", err)
		}
	})
	t.Run("corrupt crc", func(t *testing.T) {
		b := append([]byte(nil), good...)
		b[len(b)-1] ^= 0x01
		if _, err := Decode(b); !errors.Is(err, ErrChecksum) {
			t.Errorf("got %v, want ErrChecksum", err)
		}
	})
	t.Run("length mismatch", func(t *testing.T) {
		if _, err := Decode(good[:len(good)-1]); !errors.Is(err, ErrShort) {
			t.Errorf("got %v, want ErrShort", err)
		}
	})
}

func TestReadFrame(t *testing.T) {
	var stream bytes.Buffer
	stream.Write([]byte{0x00, Sync1, 0x13}) // мусор до sync
	stream.Write(Encode(ClassSlave, IDRequest, nil))
	stream.Write(Encode(ClassMaster, IDRead, []byte{9, 8, 7}))

	f, err := ReadFrame(&stream)
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if !f.Is(ClassSlave, IDRequest) || len(f.Payload) != 0 {
		t.Errorf("first frame %v", f)
	}

	f, err = ReadFrame(&stream)
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if !f.Is(ClassMaster, IDRead) || !bytes.Equal(f.Payload, []byte{9, 8, 7}) {
		t.Errorf("second frame %v % x", f, f.Payload)
	}

	if _, err := ReadFrame(&stream); err != io.EOF {
		t.Errorf("empty stream: %v, want io.EOF", err)
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	hdr := []byte{Sync1, Sync2, ClassMaster, IDRead, 0xff, 0xff}
	if _, err := ReadFrame(bytes.NewReader(hdr)); !errors.Is(err, ErrTooLarge) {
		t.Errorf("got %v, want ErrTooLarge", err)
	}
}

func TestReadFrameSkipsUBX(t *testing.T) {
	var stream bytes.Buffer
	// UBX NAV-PVT poll и UBX-ACK на том же порту
	stream.Write([]byte{0xB5, 0x62, 0x01, 0x07, 0x00, 0x00, 0x08, 0x19})
	stream.Write([]byte{0xB5, 0x62, 0x05, 0x01, 0x02, 0x00, 0x06, 0x31, 0x3F, 0x98})
	stream.Write(Encode(ClassMaster, IDWrite, []byte{7, 0}))

	f, err := ReadFrame(&stream)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if !f.Is(ClassMaster, IDWrite) || !bytes.Equal(f.Payload, []byte{7, 0}) {
		t.Errorf("frame %v % x", f, f.Payload)
	}
}
