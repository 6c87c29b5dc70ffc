package modbus

import "sync"

// EngineStats is a snapshot of the engine's diagnostic counters. Runs,
// reads, and writes are tracked internally but never required by any
// wire operation (§9 Open Questions); this runtime exposes them as an
// explicit, optional read path instead of leaving them dead.
//
// Stats() returns a plain value type, not a live pointer a caller could
// mutate, in the same shape as a typical bus-diagnostics snapshot call.
// A channel-actor counter manager is overkill here: this engine's
// counters are four independent ints with no ordering requirement
// between them, so a plain mutex is the idiomatic and sufficient
// mechanism — no actor goroutine is justified for four increments.
type EngineStats struct {
	// Runs counts every request Handle has processed, including
	// unsupported function codes and requests that ended in an exception.
	Runs int
	// Reads counts requests handled by a read-family function code
	// (ReadCoils, ReadInputs, ReadHoldingRegs, ReadInputRegs).
	Reads int
	// Writes counts requests handled by a write-family function code
	// (WriteCoil, WriteReg, WriteMultipleCoils, WriteMultipleRegs).
	Writes int
	// Exceptions counts requests that produced an exception response,
	// including unsupported function codes.
	Exceptions int
}

type diagnostics struct {
	mu    sync.Mutex
	stats EngineStats
}

func (d *diagnostics) run()                { d.mu.Lock(); d.stats.Runs++; d.mu.Unlock() }
func (d *diagnostics) read()               { d.mu.Lock(); d.stats.Reads++; d.mu.Unlock() }
func (d *diagnostics) write()              { d.mu.Lock(); d.stats.Writes++; d.mu.Unlock() }
func (d *diagnostics) exception()          { d.mu.Lock(); d.stats.Exceptions++; d.mu.Unlock() }
func (d *diagnostics) snapshot() EngineStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
