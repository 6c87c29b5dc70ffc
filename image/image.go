// Package image implements the PLC process image: the shared, typed I/O
// table that the scan function, the hardware layer, and the protocol
// server all read and write under a single coarse lock.
package image

import "sync"

// N is the size of one coordinate of an addressable family/type space.
// Both major and minor range over 0..N-1.
const N = 100

// Family distinguishes inputs from outputs.
type Family int

const (
	Input Family = iota
	Output
)

// Type identifies one of the IEC 61131-3 elementary data widths this
// image carries.
type Type int

const (
	Bool Type = iota
	SInt
	Int
	DInt
	LInt
	USInt
	UInt
	UDInt
	ULInt
	Real
	LReal
)

// Cell is the ownership-neutral handle a slot holds. Exactly one of the
// fields is meaningful, selected by the Type passed to Bind. Cell's own
// accessors (Bool/SetBool, Int/SetInt, ...) touch these fields, and Cell
// itself enforces no locking — any read or write of a slot's underlying
// value must occur with the image lock held, and that lock lives on
// Image, not on the cell.
type Cell struct {
	typ    Type
	bval   bool
	ival   int64
	fval   float32
	dval   float64
	signed bool
}

// NewBoolCell creates a cell for Bool slots, seeded to false.
func NewBoolCell() *Cell { return &Cell{typ: Bool} }

// NewIntCell creates a cell for any of the integer widths, seeded to zero.
func NewIntCell(t Type) *Cell {
	switch t {
	case SInt, Int, DInt, LInt:
		return &Cell{typ: t, signed: true}
	case USInt, UInt, UDInt, ULInt:
		return &Cell{typ: t}
	default:
		panic("image: NewIntCell called with non-integer type")
	}
}

// NewRealCell creates a cell for Real slots, seeded to zero.
func NewRealCell() *Cell { return &Cell{typ: Real} }

// NewLRealCell creates a cell for LReal slots, seeded to zero.
func NewLRealCell() *Cell { return &Cell{typ: LReal} }

// Bool returns the cell's boolean value. Callers must hold the owning
// Image's lock.
func (c *Cell) Bool() bool { return c.bval }

// SetBool sets the cell's boolean value. Callers must hold the owning
// Image's lock.
func (c *Cell) SetBool(v bool) { c.bval = v }

// Int returns the cell's integer value, already narrowed and (if the
// cell's type is signed) sign-extended to the cell's bound width by the
// most recent SetInt. Callers must hold the owning Image's lock.
func (c *Cell) Int() int64 { return c.ival }

// SetInt sets the cell's integer value, narrowing v to the cell's bound
// width and sign-extending it if the type is signed — register slots
// store the full natural width of their IEC type (§3), not a bare
// int64, so a SInt cell wraps at 8 bits and reads back negative the same
// way a DInt cell wraps at 32. Callers must hold the owning Image's lock.
func (c *Cell) SetInt(v int64) { c.ival = narrowInt(v, intWidth(c.typ), c.signed) }

// intWidth returns the bit width of an integer IEC type.
func intWidth(t Type) int {
	switch t {
	case SInt, USInt:
		return 8
	case Int, UInt:
		return 16
	case DInt, UDInt:
		return 32
	case LInt, ULInt:
		return 64
	default:
		return 64
	}
}

// narrowInt truncates v to width bits and, if signed, sign-extends the
// result back to int64. width >= 64 is a no-op (int64 already is the
// natural width, and a 64-bit mask would overflow the shift).
func narrowInt(v int64, width int, signed bool) int64 {
	if width >= 64 {
		return v
	}
	mask := int64(1)<<uint(width) - 1
	v &= mask
	if signed && v&(int64(1)<<uint(width-1)) != 0 {
		v -= int64(1) << uint(width)
	}
	return v
}

// Real returns the cell's float32 value. Callers must hold the owning
// Image's lock.
func (c *Cell) Real() float32 { return c.fval }

// SetReal sets the cell's float32 value. Callers must hold the owning
// Image's lock.
func (c *Cell) SetReal(v float32) { c.fval = v }

// LReal returns the cell's float64 value. Callers must hold the owning
// Image's lock.
func (c *Cell) LReal() float64 { return c.dval }

// SetLReal sets the cell's float64 value. Callers must hold the owning
// Image's lock.
func (c *Cell) SetLReal(v float64) { c.dval = v }

// Type reports the IEC width this cell was bound with.
func (c *Cell) Type() Type { return c.typ }

// space is one rectangular Family/Type addressable area: N*N slots, each
// either nil (unbound, behaves as zero on read / discard on write) or a
// bound *Cell.
type space [N][N]*Cell

// Image is the fixed-shape table of slots crossed by Family and Type. It
// is constructed empty; the compiled program's config_init equivalent
// calls Bind to register cells before Start, after which Bind panics.
//
// The lock is unexported and reached only through WithLock: there is no
// promoted Lock/Unlock, so a caller outside this package cannot acquire
// the image lock without going through the one sanctioned entry point,
// matching the contract that direct, unlocked access is a violation.
type Image struct {
	mu      sync.Mutex
	started bool

	spaces map[spaceKey]*space

	clock Clock
}

type spaceKey struct {
	family Family
	typ    Type
}

// New returns an empty process image.
func New() *Image {
	return &Image{spaces: make(map[spaceKey]*space)}
}

// Bind registers a cell at (family, typ, major, minor). It must be called
// before Start; calling it afterward is a programmer error and panics —
// binding after start is a construction-time contract violation, and
// panic is the idiomatic signal for that rather than an error return.
func (img *Image) Bind(family Family, typ Type, major, minor int, cell *Cell) {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.started {
		panic("image: Bind called after Start")
	}
	if major < 0 || major >= N || minor < 0 || minor >= N {
		panic("image: Bind address out of range")
	}
	key := spaceKey{family, typ}
	sp, ok := img.spaces[key]
	if !ok {
		sp = &space{}
		img.spaces[key] = sp
	}
	sp[major][minor] = cell
}

// Start freezes the slot layout. After Start, Bind panics; only the
// pointed-to cell values may still change.
func (img *Image) Start() {
	img.mu.Lock()
	defer img.mu.Unlock()
	img.started = true
}

// WithLock runs fn with the image lock held. Every composite read/write
// against the image — scan execution, hardware sync, Modbus handlers —
// goes through this.
func (img *Image) WithLock(fn func()) {
	img.mu.Lock()
	defer img.mu.Unlock()
	fn()
}

// Cell returns the bound cell at (family, typ, major, minor), or nil if
// the slot is empty. Callers must already hold the image lock (i.e. call
// this from inside a WithLock callback).
func (img *Image) Cell(family Family, typ Type, major, minor int) *Cell {
	if major < 0 || major >= N || minor < 0 || minor >= N {
		return nil
	}
	sp, ok := img.spaces[spaceKey{family, typ}]
	if !ok {
		return nil
	}
	return sp[major][minor]
}

// Clock returns the process-wide system clock image.
func (img *Image) Clock() *Clock {
	return &img.clock
}
