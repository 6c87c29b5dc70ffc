package serial

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte{0x53, 0x45, 0x5C, 0x01}
	frame := Encode(payload)

	want := []byte{'S', '\\', 'S', '\\', 'E', '\\', '\\', 0x01, 'E'}
	if len(frame) != len(want) {
		t.Fatalf("frame = % x, want % x", frame, want)
	}
	for i, b := range want {
		if frame[i] != b {
			t.Fatalf("frame byte %d = 0x%02x, want 0x%02x (full % x)", i, frame[i], b, frame)
		}
	}

	dec := NewDecoder()
	var got []byte
	dec.FeedAll(frame, func(f []byte) { got = append([]byte(nil), f...) })

	if len(got) != len(payload) {
		t.Fatalf("decoded = % x, want % x", got, payload)
	}
	for i, b := range payload {
		if got[i] != b {
			t.Fatalf("decoded byte %d = 0x%02x, want 0x%02x", i, got[i], b)
		}
	}
	if dec.state != stateIdle {
		t.Fatalf("decoder left in state %d, want idle", dec.state)
	}
}

func TestDecoderRoundTripArbitraryPayload(t *testing.T) {
	payload := make([]byte, 28)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	frame := Encode(payload)

	dec := NewDecoder()
	var got []byte
	dec.FeedAll(frame, func(f []byte) { got = append([]byte(nil), f...) })

	if len(got) != len(payload) {
		t.Fatalf("decoded length = %d, want %d", len(got), len(payload))
	}
	for i, b := range payload {
		if got[i] != b {
			t.Fatalf("byte %d = 0x%02x, want 0x%02x", i, got[i], b)
		}
	}
}

func TestDecoderToleratesGarbageBeforeStart(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	stream := append([]byte{0xFF, 0x00, 0xAB, 0xCD}, Encode(payload)...)

	dec := NewDecoder()
	var frames [][]byte
	dec.FeedAll(stream, func(f []byte) { frames = append(frames, append([]byte(nil), f...)) })

	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d", len(frames))
	}
	for i, b := range payload {
		if frames[0][i] != b {
			t.Fatalf("byte %d = 0x%02x, want 0x%02x", i, frames[0][i], b)
		}
	}
}

func TestDecoderInFrameRestartOnMissedEnd(t *testing.T) {
	// S <payload1> S <payload2> E: the second S restarts the frame, whose
	// E was never seen, per the "missed end-of-frame recovery" transition.
	stream := []byte{'S', 0x11, 0x22, 'S', 0x33, 0x44, 'E'}

	dec := NewDecoder()
	var frames [][]byte
	dec.FeedAll(stream, func(f []byte) { frames = append(frames, append([]byte(nil), f...)) })

	if len(frames) != 1 {
		t.Fatalf("expected exactly 1 frame, got %d: % x", len(frames), frames)
	}
	want := []byte{0x33, 0x44}
	if len(frames[0]) != len(want) || frames[0][0] != want[0] || frames[0][1] != want[1] {
		t.Fatalf("frame = % x, want % x", frames[0], want)
	}
}

func TestDecoderEscapedInvalidFollowerDiscards(t *testing.T) {
	// S \x E: escape followed by a byte that is none of \, E, S discards
	// the in-progress frame and returns to IDLE without emitting anything.
	stream := []byte{'S', '\\', 'x', 'E'}

	dec := NewDecoder()
	var frames [][]byte
	dec.FeedAll(stream, func(f []byte) { frames = append(frames, append([]byte(nil), f...)) })

	if len(frames) != 0 {
		t.Fatalf("expected no frames, got %d: % x", len(frames), frames)
	}
	if dec.state != stateIdle {
		t.Fatalf("decoder left in state %d, want idle", dec.state)
	}
}
