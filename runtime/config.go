// Package runtime wires the process image, Modbus/TCP engine, scheduler,
// and hardware layer into one supervised process, coordinated with
// golang.org/x/sync/errgroup so any task's fatal error tears the rest
// down cooperatively.
package runtime

import (
	"os"
	"strconv"
	"time"
)

// defaultCyclePeriod is 50ms, matching the conventional OPLC_CYCLE
// default (50000000 nanoseconds).
const defaultCyclePeriod = 50 * time.Millisecond

// Config holds the runtime's tunables. File-format and CLI parsing are
// out of scope; callers build a Config directly.
type Config struct {
	// CyclePeriod is the scan scheduler's fixed period. Zero means use
	// the default (50ms), overridable via the OPLC_CYCLE environment
	// variable (nanoseconds).
	CyclePeriod time.Duration

	// ModbusAddr is the listen address for the Modbus/TCP server,
	// conventionally ":502".
	ModbusAddr string

	// SerialDevice is the path to the reference serial driver's port.
	// New does not read it: the hardware layer is passed to New already
	// built, and this field does not attach or detach a driver.
	SerialDevice string

	// SerialBaud is the serial driver's baud rate. Like SerialDevice, it
	// is not read by New.
	SerialBaud uint32
}

// WithEnvOverrides applies OPLC_CYCLE (nanoseconds) from the environment
// if set and parses as a positive integer, then fills in a zero
// CyclePeriod and an empty ModbusAddr with their defaults; the serial
// fields are left as they are. Returns the same Config for chaining.
func (c Config) WithEnvOverrides() Config {
	if v := os.Getenv("OPLC_CYCLE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.CyclePeriod = time.Duration(n)
		}
	}
	if c.CyclePeriod <= 0 {
		c.CyclePeriod = defaultCyclePeriod
	}
	if c.ModbusAddr == "" {
		c.ModbusAddr = ":502"
	}
	return c
}
