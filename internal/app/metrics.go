package app

import "fmt"

// Snapshot is a point-in-time view of the pipeline counters, logged on
// shutdown and exposed for tests.
type Snapshot struct {
	Pulled     uint64
	Rerun      uint64
	Registered uint64
	Fired      uint64
	Expired    uint64
	Caught     uint64
	Blocks     uint64
	Buffered   uint64
	Flushed    uint64
	Pressed    uint64
	Duplicates uint64
	Unmapped   uint64
	Emitted    uint64
}

// Snapshot collects the counters from every stage.
func (a *App) Snapshot() Snapshot {
	var s Snapshot
	s.Pulled, s.Rerun = a.dispatch.Stats()

	inReg, inFired, inExpired, inCaught := a.inHooks.Stats()
	outReg, outFired, outExpired, outCaught := a.outHooks.Stats()
	s.Registered = inReg + outReg
	s.Fired = inFired + outFired
	s.Expired = inExpired + outExpired
	s.Caught = inCaught + outCaught

	s.Blocks, s.Buffered, s.Flushed = a.sluice.Stats()
	s.Pressed, s.Duplicates, s.Unmapped = a.runner.Stats()
	s.Emitted = a.emitter.Emitted()
	return s
}

// String renders the snapshot for the shutdown log line.
func (s Snapshot) String() string {
	return fmt.Sprintf(
		"pulled=%d rerun=%d hooks=%d/%d fired, %d expired, %d caught "+
			"sluice=%d blocks, %d buffered, %d flushed "+
			"keys=%d pressed, %d duplicate, %d unmapped emitted=%d",
		s.Pulled, s.Rerun, s.Fired, s.Registered, s.Expired, s.Caught,
		s.Blocks, s.Buffered, s.Flushed,
		s.Pressed, s.Duplicates, s.Unmapped, s.Emitted,
	)
}
