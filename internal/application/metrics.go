package application

import "expvar"

// opCounters counts service calls by "op.outcome"; published on /debug/vars.
var opCounters = expvar.NewMap("aggregate_ops")

func countOp(op, outcome string) {
	opCounters.Add(op+"."+outcome, 1)
}
