package engine

// Params control one sync-or-execute run. The zero value syncs nothing and
// executes nothing; the CLI fills in what its flags request.
type Params struct {
	// Sync runs the sync phase; Execute runs the execution phase.
	Sync    bool
	Execute bool

	// FullSync resets the received-watermark of each selected module to
	// zero and discards its queued events before polling.
	FullSync bool

	// Module restricts the run to modules matching this name (module name
	// or connector name). Empty selects all modules.
	Module string

	// Exclude lists module names skipped by both phases.
	Exclude []string

	// MaxEvents bounds the number of events processed by the execution
	// phase. Zero means unbounded. The budget is checked before each
	// event so a bounded run stops cleanly, preserving state mutated so
	// far.
	MaxEvents int

	executed int
}

// ShouldContinue reports whether the execution budget allows processing
// another event.
func (p *Params) ShouldContinue() bool {
	return p.MaxEvents <= 0 || p.executed < p.MaxEvents
}

// CountExecutedEvent records one processed event against the budget.
func (p *Params) CountExecutedEvent() {
	p.executed++
}

// Executed returns the number of events processed so far.
func (p *Params) Executed() int {
	return p.executed
}
