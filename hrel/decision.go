package hrel

import (
	"fmt"

	"github.com/heron-dds/heron/hseq"
)

// DecisionKind is the outcome of processing one inbound HEARTBEAT.
// It is a closed set; there are no other outcomes.
type DecisionKind uint8

const (
	// Invalid zero value.
	_ DecisionKind = iota

	// DecisionIgnore: the HEARTBEAT is a duplicate or stale replay.
	// No ACKNACK is emitted.
	DecisionIgnore

	// DecisionSynchronized: the reader has everything the writer announced.
	// The emitted ACKNACK carries Final=true,
	// which is what stops further exchange once caught up.
	DecisionSynchronized

	// DecisionNeedData: the writer must retransmit
	// starting from the decision's bitmap base. Final=false.
	DecisionNeedData

	// DecisionRateLimited: an ACKNACK went out too recently.
	// The caller re-evaluates on a later tick;
	// this is not progress and not an error.
	DecisionRateLimited
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionIgnore:
		return "ignore"
	case DecisionSynchronized:
		return "synchronized"
	case DecisionNeedData:
		return "need_data"
	case DecisionRateLimited:
		return "rate_limited"
	default:
		return fmt.Sprintf("invalid(%d)", uint8(k))
	}
}

// AckNackDecision is what an inbound HEARTBEAT resolved to.
type AckNackDecision struct {
	Kind DecisionKind

	// BitmapBase is the lowest sequence the ACKNACK's bitmap covers:
	// the next sequence the reader wants.
	// Meaningful only for Synchronized and NeedData.
	// It is always >= 1 and >= the writer-announced first sequence.
	BitmapBase hseq.Number
}

// Final reports the ACKNACK Final flag implied by the decision.
func (d AckNackDecision) Final() bool {
	return d.Kind == DecisionSynchronized
}

// Emits reports whether the decision results in an ACKNACK at all.
func (d AckNackDecision) Emits() bool {
	return d.Kind == DecisionSynchronized || d.Kind == DecisionNeedData
}
