// Package serial implements the reference peripheral driver: a raw,
// non-blocking serial port, a byte-stuffed framing codec, and a driver
// goroutine that bridges the two to a process image under the hardware
// layer contract.
package serial

// Frame delimiters and escape byte, per §4.3.
const (
	startByte  byte = 'S'
	endByte    byte = 'E'
	escapeByte byte = '\\'
)

// Encode returns payload byte-stuffed between start and end delimiters,
// with start/end/escape bytes inside payload escaped.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, startByte)
	for _, b := range payload {
		if b == startByte || b == endByte || b == escapeByte {
			out = append(out, escapeByte)
		}
		out = append(out, b)
	}
	out = append(out, endByte)
	return out
}

type decoderState int

const (
	stateIdle decoderState = iota
	stateInFrame
	stateEscaped
)

// Decoder is the three-state byte-stuffing decoder from §4.3. It holds
// its own payload buffer, separate from whatever buffer fed bytes arrive
// in — aliasing the read buffer as the payload buffer corrupts a frame
// still being assembled if a read lands mid-decode; this decoder copies
// accepted bytes out instead.
type Decoder struct {
	state   decoderState
	payload []byte
}

// NewDecoder returns a Decoder ready to feed bytes into.
func NewDecoder() *Decoder {
	return &Decoder{state: stateIdle, payload: make([]byte, 0, 64)}
}

// Feed advances the decoder by one byte. It returns (frame, true) when b
// completes a frame; frame is valid only until the next call to Feed.
func (d *Decoder) Feed(b byte) ([]byte, bool) {
	switch d.state {
	case stateIdle:
		if b == startByte {
			d.payload = d.payload[:0]
			d.state = stateInFrame
		}
		return nil, false

	case stateInFrame:
		switch b {
		case escapeByte:
			d.state = stateEscaped
		case endByte:
			d.state = stateIdle
			return d.payload, true
		case startByte:
			d.payload = d.payload[:0]
		default:
			d.payload = append(d.payload, b)
		}
		return nil, false

	case stateEscaped:
		switch b {
		case escapeByte, endByte, startByte:
			d.payload = append(d.payload, b)
			d.state = stateInFrame
		default:
			d.state = stateIdle
		}
		return nil, false
	}
	return nil, false
}

// FeedAll feeds every byte of data in order, invoking emit for each
// completed frame.
func (d *Decoder) FeedAll(data []byte, emit func(frame []byte)) {
	for _, b := range data {
		if frame, ok := d.Feed(b); ok {
			emit(frame)
		}
	}
}
