// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package rotary counts the steps of a two-phase quadrature rotary encoder.
//
// Decoding follows Peter Dannegger's table driven approach: both phases are
// folded into a two bit Gray code and only transitions to a neighboring state
// are counted, which rejects most contact bounce.
//
// More details
//
// https://www.mikrocontroller.net/articles/Drehgeber
package rotary
