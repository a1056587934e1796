// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"sync"
	"time"
)

// timeoutUnit is the serial timeout granularity of the Qik 2s9v1.
const timeoutUnit = 262 * time.Millisecond

// MaxSerialTimeout is the longest serial timeout the controller supports.
const MaxSerialTimeout = 15 * timeoutUnit << 7

// DecodeTimeout converts a serial timeout register value to a duration.
//
// The register holds a 4 bit mantissa x and a 3 bit exponent y; the timeout
// is 262ms * x * 2^y. Several raw values alias to the same duration.
func DecodeTimeout(raw uint8) time.Duration {
	x := time.Duration(raw & 0x0F)
	y := (raw >> 4) & 0x07
	return timeoutUnit * x << y
}

type timeoutEntry struct {
	raw uint8
	d   time.Duration
}

// timeoutTable holds the 72 raw values that map to distinct durations, in
// increasing raw order. Values with a non-zero exponent and a mantissa of 7
// or less duplicate a smaller exponent and are left out.
var timeoutTable = sync.OnceValue(func() []timeoutEntry {
	var t []timeoutEntry
	for v := 0; v < 128; v++ {
		x := v & 0x0F
		y := (v >> 4) & 0x07
		if y == 0 || x > 7 {
			t = append(t, timeoutEntry{raw: uint8(v), d: DecodeTimeout(uint8(v))})
		}
	}
	return t
})

// QuantizeTimeout returns the raw register value whose timeout is closest to
// d. On a tie the smaller raw value wins.
func QuantizeTimeout(d time.Duration) uint8 {
	if d < 0 {
		d = 0
	}
	var best uint8
	bestDiff := time.Duration(-1)
	for _, e := range timeoutTable() {
		diff := e.d - d
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = e.raw, diff
		}
	}
	return best
}
