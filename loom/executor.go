package loom

// Execute runs program against input with state mutation committed on
// success. On GasExhausted the state delta is discarded atomically (the
// returned Result carries Success=false and a nil StateDelta); logs
// accumulated before the failure are still returned, per spec.md §4.C.
func Execute(program *Program, input []byte, ctx ExecContext, gasLimit uint64, gasSchedule GasSchedule) *Result {
	m := newMachine(program, gasSchedule, gasLimit, ctx)
	err := m.run(input)
	if err != nil {
		return &Result{
			GasUsed: m.used,
			Logs:    m.logs,
			Success: false,
			Reason:  err.Error(),
		}
	}
	return &Result{
		Output:     m.output,
		GasUsed:    m.used,
		Logs:       m.logs,
		StateDelta: m.delta,
		Success:    true,
	}
}

// Query runs program identically to Execute but the caller must never
// commit the returned StateDelta — it is provided only so callers can
// assert query(x).output == execute(x).output without a second state
// reader implementation. Passing a non-nil Invoker that itself mutates
// state is the caller's responsibility to avoid; nested loom_calls from a
// query are expected to go through query-mode invokers.
func Query(program *Program, input []byte, ctx ExecContext, gasLimit uint64, gasSchedule GasSchedule) *Result {
	r := Execute(program, input, ctx, gasLimit, gasSchedule)
	r.StateDelta = nil
	return r
}
