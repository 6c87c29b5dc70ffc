package modbus

import (
	"testing"

	"github.com/oplcgo/runtime/image"
)

func newTestEngine() (*Engine, *image.Image) {
	img := image.New()
	return NewEngine(img, nil), img
}

func TestReadCoilsAllUnmapped(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x08}
	reply := engine.Handle(req)

	want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x04, 0x01, 0x01, 0x01, 0x00}
	if len(reply) != 10 {
		t.Fatalf("expected 10-byte reply, got %d: % x", len(reply), reply)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x (full reply % x)", i, reply[i], b, reply)
		}
	}
}

func TestReadCoilsTwoSetBits(t *testing.T) {
	img := image.New()
	bit2 := image.NewBoolCell()
	bit5 := image.NewBoolCell()
	bit2.SetBool(true)
	bit5.SetBool(true)
	img.Bind(image.Output, image.Bool, 0, 2, bit2)
	img.Bind(image.Output, image.Bool, 0, 5, bit5)
	img.Start()
	engine := NewEngine(img, nil)

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x08}
	reply := engine.Handle(req)

	if reply[9] != 0x24 {
		t.Fatalf("byte 9 = 0x%02x, want 0x24", reply[9])
	}
}

func TestWriteSingleCoilOn(t *testing.T) {
	img := image.New()
	cell := image.NewBoolCell()
	img.Bind(image.Output, image.Bool, 0, 3, cell)
	img.Start()
	engine := NewEngine(img, nil)

	req := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x06, 0x01, 0x05, 0x00, 0x03, 0xFF, 0x00}
	reply := engine.Handle(req)

	if len(reply) != 12 {
		t.Fatalf("expected 12-byte reply, got %d", len(reply))
	}
	for i, b := range req {
		if reply[i] != b {
			t.Fatalf("reply byte %d = 0x%02x, want echo of request 0x%02x", i, reply[i], b)
		}
	}
	if !cell.Bool() {
		t.Fatal("expected mapped coil to be set")
	}
}

func TestUnknownFunctionCode(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	req := []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x02, 0x01, 0x07}
	reply := engine.Handle(req)

	want := []byte{0x00, 0x03, 0x00, 0x00, 0x00, 0x03, 0x01, 0x87, 0x01}
	if len(reply) != 9 {
		t.Fatalf("expected 9-byte reply, got %d: % x", len(reply), reply)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, reply[i], b)
		}
	}
}

func TestReadHoldingRegistersAddressOverflow(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	req := []byte{0x00, 0x04, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x63, 0x00, 0x02}
	reply := engine.Handle(req)

	want := []byte{0x00, 0x04, 0x00, 0x00, 0x00, 0x03, 0x01, 0x83, 0x02}
	if len(reply) != 9 {
		t.Fatalf("expected 9-byte reply, got %d: % x", len(reply), reply)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, reply[i], b)
		}
	}
}

func TestWriteMultipleCoilsSpansByteBoundary(t *testing.T) {
	img := image.New()
	cells := make([]*image.Cell, 10)
	for i := range cells {
		cells[i] = image.NewBoolCell()
		img.Bind(image.Output, image.Bool, i/8, i%8, cells[i])
	}
	img.Start()
	engine := NewEngine(img, nil)

	// FC15: start=0, count=10, byteCount=2, data=[0xFF,0x03] -> bits 0..9 all set
	req := []byte{
		0x00, 0x05, 0x00, 0x00, 0x00, 0x09, 0x01, 0x0F,
		0x00, 0x00, 0x00, 0x0A, 0x02, 0xFF, 0x03,
	}
	reply := engine.Handle(req)
	if len(reply) != 12 {
		t.Fatalf("expected 12-byte reply, got %d", len(reply))
	}
	for i, c := range cells {
		if !c.Bool() {
			t.Fatalf("expected coil %d to be set", i)
		}
	}
}

func TestReadHoldingRegisterValue(t *testing.T) {
	img := image.New()
	cell := image.NewIntCell(image.UInt)
	cell.SetInt(0x1234)
	img.Bind(image.Output, image.UInt, 0, 7, cell)
	img.Start()
	engine := NewEngine(img, nil)

	req := []byte{0x00, 0x06, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x07, 0x00, 0x01}
	reply := engine.Handle(req)

	if reply[8] != 2 {
		t.Fatalf("byte count = %d, want 2", reply[8])
	}
	got := int(reply[9])<<8 | int(reply[10])
	if got != 0x1234 {
		t.Fatalf("register value = 0x%04x, want 0x1234", got)
	}
}

func TestWriteMultipleRegisters(t *testing.T) {
	img := image.New()
	cell := image.NewIntCell(image.UInt)
	img.Bind(image.Output, image.UInt, 0, 2, cell)
	img.Start()
	engine := NewEngine(img, nil)

	req := []byte{
		0x00, 0x07, 0x00, 0x00, 0x00, 0x09, 0x01, 0x10,
		0x00, 0x02, 0x00, 0x01, 0x02, 0xAB, 0xCD,
	}
	reply := engine.Handle(req)
	if len(reply) != 12 {
		t.Fatalf("expected 12-byte reply, got %d", len(reply))
	}
	if cell.Int() != 0xABCD {
		t.Fatalf("register = 0x%04x, want 0xABCD", cell.Int())
	}
}

func TestUnmappedWriteThenReadReturnsZero(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	writeReq := []byte{0x00, 0x08, 0x00, 0x00, 0x00, 0x06, 0x01, 0x06, 0x00, 0x09, 0x12, 0x34}
	engine.Handle(writeReq) // unmapped register: silent discard

	readReq := []byte{0x00, 0x09, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x09, 0x00, 0x01}
	reply := engine.Handle(readReq)
	got := int(reply[9])<<8 | int(reply[10])
	if got != 0 {
		t.Fatalf("expected unmapped register to read back 0, got 0x%04x", got)
	}
}

func TestReadCoilsOversizedCountRejectedNotPanics(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	// count=2016 is a normal 16-bit field value and well within the
	// fixed 5-byte FC1 request PDU, but would need 252 reply bytes —
	// more than the working buffer has room for past offset 9. Handle
	// must reject it as ILLEGAL_DATA_VALUE rather than index out of
	// range.
	req := []byte{0x00, 0x0A, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x07, 0xE0}
	reply := engine.Handle(req)

	want := []byte{0x00, 0x0A, 0x00, 0x00, 0x00, 0x03, 0x01, 0x81, 0x03}
	if len(reply) != 9 {
		t.Fatalf("expected 9-byte exception reply, got %d: % x", len(reply), reply)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x (full reply % x)", i, reply[i], b, reply)
		}
	}
}

func TestWriteMultipleCoilsOversizedCountRejectedNotPanics(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	// count=2000 together with a short declared byte count/data section
	// would otherwise walk the bit-unpacking loop past the end of the
	// working buffer. Handle must reject it as ILLEGAL_DATA_VALUE before
	// touching the data bytes at all.
	req := []byte{0x00, 0x0B, 0x00, 0x00, 0x00, 0x06, 0x01, 0x0F, 0x00, 0x00, 0x07, 0xD0}
	reply := engine.Handle(req)

	want := []byte{0x00, 0x0B, 0x00, 0x00, 0x00, 0x03, 0x01, 0x8F, 0x03}
	if len(reply) != 9 {
		t.Fatalf("expected 9-byte exception reply, got %d: % x", len(reply), reply)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x (full reply % x)", i, reply[i], b, reply)
		}
	}
}

func TestReplyLengthFieldInvariant(t *testing.T) {
	engine, img := newTestEngine()
	img.Start()

	cases := [][]byte{
		{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x08},
		{0x00, 0x02, 0x00, 0x00, 0x00, 0x06, 0x01, 0x03, 0x00, 0x00, 0x00, 0x02},
		{0x00, 0x03, 0x00, 0x00, 0x00, 0x02, 0x01, 0x07},
	}
	for _, req := range cases {
		reply := engine.Handle(req)
		length := int(reply[4])<<8 | int(reply[5])
		if length != len(reply)-6 {
			t.Fatalf("length field %d != total-6 (%d) for reply % x", length, len(reply)-6, reply)
		}
	}
}
