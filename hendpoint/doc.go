// Package hendpoint contains the stateful writer and reader endpoints:
// the kernels that drive the HEARTBEAT/ACKNACK exchange
// over the per-peer state in [github.com/heron-dds/heron/hrel].
//
// Each endpoint owns exactly one registry,
// constructed with the endpoint and destroyed with it.
// The data path (Write, HandleData) is synchronous and non-blocking;
// the control path runs on the endpoint's kernel goroutine
// plus whatever goroutine delivers inbound events.
package hendpoint
