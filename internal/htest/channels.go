// Package htest contains helpers for channel-driven tests.
package htest

import (
	"testing"
	"time"
)

// ScaledTimeout is how long the helpers wait
// before declaring a channel stuck.
const ScaledTimeout = time.Second

// ReceiveSoon returns a value received from ch,
// failing the test if none arrives within [ScaledTimeout].
func ReceiveSoon[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(ScaledTimeout):
		t.Fatalf("timed out waiting %s to receive", ScaledTimeout)
		panic("unreachable")
	}
}

// SendSoon sends v on ch,
// failing the test if the send does not complete within [ScaledTimeout].
func SendSoon[T any](t *testing.T, ch chan<- T, v T) {
	t.Helper()

	select {
	case ch <- v:
		// Okay.
	case <-time.After(ScaledTimeout):
		t.Fatalf("timed out waiting %s to send", ScaledTimeout)
	}
}

// IsSending asserts that ch is ready to receive from immediately,
// without consuming a value beyond the one received.
func IsSending[T any](t *testing.T, ch <-chan T) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	default:
		t.Fatal("expected channel to be sending")
		panic("unreachable")
	}
}

// NotSending asserts that ch has no value ready.
func NotSending[T any](t *testing.T, ch <-chan T) {
	t.Helper()

	select {
	case <-ch:
		t.Fatal("expected channel not to be sending")
	default:
		// Okay.
	}
}
