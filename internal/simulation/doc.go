// Package simulation evolves the refinery signal registry over time.
//
// An Engine owns the only mutable signals.Registry. Every tick it applies the
// bounded noise model to each non-status signal, then runs the correlation pass
// that recomputes the derived signals from the primary inputs and the operator
// mode. Scenario steps, external writes and delayed decision confirmations are
// funnelled into the same goroutine as messages, so each mutation commits as a
// unit and readers only ever see a published Snapshot.
//
// Usage:
//
//	eng := simulation.New(simulation.DefaultConfig())
//	if err := eng.Start(); err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	v, _ := eng.Read(signals.QualityKPI)
//	res, err := eng.Write(ctx, signals.CrudeFlow, 131.5)
package simulation
