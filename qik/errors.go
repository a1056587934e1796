// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidArgument is returned when an argument cannot be sent to the
	// controller. Nothing is written on the wire in that case.
	ErrInvalidArgument = errors.New("qik: invalid argument")

	// ErrTransportTimeout is returned when the controller did not answer in
	// time. The state of the link is unknown afterward; re-assert the
	// protocol with SetProtocol before relying on it again.
	ErrTransportTimeout = errors.New("qik: transport timeout")

	// ErrTransport is returned on any other failure of the underlying
	// connection.
	ErrTransport = errors.New("qik: transport error")

	// ErrProtocol is returned when the controller answers with a value the
	// command does not allow, which hints at a firmware or wiring mismatch.
	ErrProtocol = errors.New("qik: protocol error")
)

// transportError classifies an error returned by the connection. Errors are
// never retried: repeating a configuration write could apply it twice.
func transportError(err error) error {
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// ErrorCondition is one bit of the controller's error register.
type ErrorCondition uint8

const (
	ErrorBit0Unused  ErrorCondition = 1 << 0
	ErrorBit1Unused  ErrorCondition = 1 << 1
	ErrorBit2Unused  ErrorCondition = 1 << 2
	ErrorDataOverrun ErrorCondition = 1 << 3
	ErrorFrame       ErrorCondition = 1 << 4
	ErrorCRC         ErrorCondition = 1 << 5
	ErrorFormat      ErrorCondition = 1 << 6
	ErrorTimeout     ErrorCondition = 1 << 7
)

var errorLabels = map[ErrorCondition]string{
	ErrorBit0Unused:  "Bit 0 Unused",
	ErrorBit1Unused:  "Bit 1 Unused",
	ErrorBit2Unused:  "Bit 2 Unused",
	ErrorDataOverrun: "Data Overrun Error",
	ErrorFrame:       "Frame Error",
	ErrorCRC:         "CRC Error",
	ErrorFormat:      "Format Error",
	ErrorTimeout:     "Timeout",
}

func (e ErrorCondition) String() string {
	if s, ok := errorLabels[e]; ok {
		return s
	}
	return fmt.Sprintf("unknown value: %d", uint8(e))
}

// DecodeErrorMask splits an error register value into its set bits, most
// significant first.
//
// A zero register returns an empty slice.
func DecodeErrorMask(mask byte) []ErrorCondition {
	var out []ErrorCondition
	for bit := 7; bit >= 0; bit-- {
		if c := ErrorCondition(1 << bit); mask&byte(c) != 0 {
			out = append(out, c)
		}
	}
	return out
}

// ErrorConditions is a list of active error conditions.
type ErrorConditions []ErrorCondition

// String joins the condition labels. An empty list, meaning no error, renders
// as "OK"; that label is not a condition.
func (e ErrorConditions) String() string {
	if len(e) == 0 {
		return "OK"
	}
	s := make([]string, len(e))
	for i, c := range e {
		s[i] = c.String()
	}
	return strings.Join(s, ", ")
}
