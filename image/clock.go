package image

import "time"

// Clock is the process-wide mapping of the current UTC wall-clock
// components, updated exactly once per tick, after the scan function and
// the hardware sync, so each scan sees the time recorded at the end of
// the previous tick (all fields are zero during the first scan). It is
// held by Image and shares the image lock — callers reach it through
// Image.WithLock, same as any other cell.
type Clock struct {
	Year        int
	Month       int
	Day         int
	Hour        int
	Minute      int
	Second      int
	Millisecond int
}

// Update sets the clock image from t, which should be UTC. The scheduler
// calls this once per tick; releasing the image lock before the update
// completes is not required — only that it happen before the scan
// function runs on the *next* tick — but this runtime updates it
// immediately after update_buffers so the image always reflects the time
// at which the most recent scan and hardware sync finished.
func (c *Clock) Update(t time.Time) {
	t = t.UTC()
	c.Year = t.Year()
	c.Month = int(t.Month())
	c.Day = t.Day()
	c.Hour = t.Hour()
	c.Minute = t.Minute()
	c.Second = t.Second()
	c.Millisecond = t.Nanosecond() / int(time.Millisecond)
}
