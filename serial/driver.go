package serial

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oplcgo/runtime/hardware"
	"github.com/oplcgo/runtime/image"
)

// Outbound/inbound blob widths, per §6: outbound = 4 digital bytes plus
// 12 analog registers (2 bytes each); inbound = 4 digital bytes plus 16
// analog registers.
const (
	outboundDigitalBytes = 4
	outboundAnalogWords  = 12
	outboundSize         = outboundDigitalBytes + outboundAnalogWords*2

	inboundDigitalBytes = 4
	inboundAnalogWords  = 16
	inboundSize         = inboundDigitalBytes + inboundAnalogWords*2
)

// Driver is the reference hardware.Layer implementation: a byte-stuffed
// framed exchange with a peripheral board over a raw serial port.
// UpdateBuffers is the memcpy-class half of the contract (§4.2); a
// goroutine launched from Initialize owns the slow I/O and the decoder,
// exchanging with UpdateBuffers only through outboundMu/inboundMu.
type Driver struct {
	port *Port
	log  *logrus.Logger

	outboundMu sync.Mutex
	outbound   [outboundSize]byte

	inboundMu sync.Mutex
	inbound   [inboundSize]byte

	decoder *Decoder

	cancel context.CancelFunc
	done   chan struct{}
}

// NewDriver opens device at baud and returns a Driver ready for
// Initialize. log may be nil.
func NewDriver(device string, baud BaudRate, log *logrus.Logger) (*Driver, error) {
	port, err := Open(device, baud)
	if err != nil {
		return nil, err
	}
	return &Driver{
		port:    port,
		log:     log,
		decoder: NewDecoder(),
		done:    make(chan struct{}),
	}, nil
}

var _ hardware.ShutdownLayer = (*Driver)(nil)

// Initialize launches the driver's send/read/decode loop. It returns
// immediately; the loop runs until ctx is canceled or Shutdown is called.
func (d *Driver) Initialize(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	go d.loop(loopCtx)
	return nil
}

// Shutdown cancels the driver loop and closes the serial port.
func (d *Driver) Shutdown(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	select {
	case <-d.done:
	case <-ctx.Done():
	}
	return d.port.Close()
}

// UpdateBuffers copies image outputs into the outbound blob and the
// inbound blob into image inputs. Called once per scan with the image
// lock already held by the caller; it touches only its own
// driver-local mutexes, never the serial port, matching §4.2's
// memcpy-class requirement.
func (d *Driver) UpdateBuffers(img *image.Image) {
	var out [outboundSize]byte
	packDigital(img, image.Output, out[:outboundDigitalBytes])
	packAnalog(img, image.Output, out[outboundDigitalBytes:], outboundAnalogWords)

	d.outboundMu.Lock()
	d.outbound = out
	d.outboundMu.Unlock()

	var in [inboundSize]byte
	d.inboundMu.Lock()
	in = d.inbound
	d.inboundMu.Unlock()

	unpackDigital(img, image.Input, in[:inboundDigitalBytes])
	unpackAnalog(img, image.Input, in[inboundDigitalBytes:], inboundAnalogWords)
}

// loop implements §4.3's "Thread": send outbound frame, wait 1ms, read
// available bytes, feed the decoder, sleep 30ms, repeat. Cancellation is
// cooperative at both sleep points.
func (d *Driver) loop(ctx context.Context) {
	defer close(d.done)

	readBuf := make([]byte, 256)
	for {
		d.outboundMu.Lock()
		frame := Encode(d.outbound[:])
		d.outboundMu.Unlock()

		if _, err := d.port.Write(frame); err != nil && d.log != nil {
			d.log.WithError(err).Warn("serial: write failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Millisecond):
		}

		n, err := d.port.Read(readBuf)
		if err != nil {
			if d.log != nil {
				d.log.WithError(err).Warn("serial: read failed")
			}
		} else if n > 0 {
			d.decoder.FeedAll(readBuf[:n], func(payload []byte) {
				if len(payload) != inboundSize {
					return
				}
				d.inboundMu.Lock()
				copy(d.inbound[:], payload)
				d.inboundMu.Unlock()
			})
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(30 * time.Millisecond):
		}
	}
}

func packDigital(img *image.Image, family image.Family, out []byte) {
	for i := range out {
		out[i] = 0
	}
	for bit := 0; bit < len(out)*8; bit++ {
		cell := img.Cell(family, image.Bool, 0, bit)
		if cell != nil && cell.Bool() {
			out[bit/8] |= 1 << uint(bit%8)
		}
	}
}

func unpackDigital(img *image.Image, family image.Family, in []byte) {
	for bit := 0; bit < len(in)*8; bit++ {
		cell := img.Cell(family, image.Bool, 0, bit)
		if cell == nil {
			continue
		}
		v := (in[bit/8]>>uint(bit%8))&1 != 0
		cell.SetBool(v)
	}
}

func packAnalog(img *image.Image, family image.Family, out []byte, words int) {
	for i := 0; i < words; i++ {
		cell := img.Cell(family, image.UInt, 0, i)
		var v uint16
		if cell != nil {
			v = uint16(cell.Int())
		}
		out[2*i] = byte(v >> 8)
		out[2*i+1] = byte(v)
	}
}

func unpackAnalog(img *image.Image, family image.Family, in []byte, words int) {
	for i := 0; i < words; i++ {
		cell := img.Cell(family, image.UInt, 0, i)
		if cell == nil {
			continue
		}
		v := uint16(in[2*i])<<8 | uint16(in[2*i+1])
		cell.SetInt(int64(v))
	}
}
