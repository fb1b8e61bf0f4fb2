// Package heron contains the core APIs for instantiating a HERON participant.
//
// HERON is a reliable datagram delivery engine in the RTPS mold:
// writers announce what they have with HEARTBEATs,
// readers answer with ACKNACKs requesting what they are missing,
// and writers repair the difference from bounded history,
// with GAPs covering what history has already dropped.
//
// A [Participant] owns one transport socket and the stateful
// writer and reader endpoints sharing it.
// The per-peer protocol state machines live in
// [github.com/heron-dds/heron/hrel];
// the endpoint kernels live in [github.com/heron-dds/heron/hendpoint].
package heron
