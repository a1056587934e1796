// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// ConfigParameter is the key understood by the get and set configuration
// commands.
type ConfigParameter uint8

const (
	ConfigDeviceID           ConfigParameter = 0x00
	ConfigPWM                ConfigParameter = 0x01
	ConfigMotorErrorShutdown ConfigParameter = 0x02
	ConfigSerialTimeout      ConfigParameter = 0x03
)

func (p ConfigParameter) String() string {
	switch p {
	case ConfigDeviceID:
		return "Device ID"
	case ConfigPWM:
		return "PWM Parameter"
	case ConfigMotorErrorShutdown:
		return "Shutdown Motors on Error"
	case ConfigSerialTimeout:
		return "Serial Timeout"
	default:
		return fmt.Sprintf("unknown value: %d", uint8(p))
	}
}

func (p ConfigParameter) valid() bool {
	return p <= ConfigSerialTimeout
}

// ConfigResult is the controller's answer to a configuration write.
type ConfigResult uint8

const (
	ConfigOK               ConfigResult = 0
	ConfigInvalidParameter ConfigResult = 1
	ConfigInvalidValue     ConfigResult = 2
)

// String returns the controller's description of the result. Codes the
// driver does not know are reported as "unknown value: N".
func (r ConfigResult) String() string {
	switch r {
	case ConfigOK:
		return "OK"
	case ConfigInvalidParameter:
		return "Invalid Parameter"
	case ConfigInvalidValue:
		return "Invalid Value"
	default:
		return fmt.Sprintf("unknown value: %d", uint8(r))
	}
}

// PWMResolution is the value of the PWM configuration parameter. It selects
// both the PWM carrier frequency and the width of the speed register.
type PWMResolution uint8

const (
	PWM31kHz7Bit PWMResolution = 0
	PWM15kHz8Bit PWMResolution = 1
	PWM7kHz7Bit  PWMResolution = 2
	PWM3kHz8Bit  PWMResolution = 3
)

var pwmResolutions = [...]struct {
	freq  physic.Frequency
	label string
}{
	PWM31kHz7Bit: {31500 * physic.Hertz, "7-Bit, PWM Frequency 31.5kHz"},
	PWM15kHz8Bit: {15700 * physic.Hertz, "8-Bit, PWM Frequency 15.7kHz"},
	PWM7kHz7Bit:  {7800 * physic.Hertz, "7-Bit, PWM Frequency 7.8kHz"},
	PWM3kHz8Bit:  {3900 * physic.Hertz, "8-Bit, PWM Frequency 3.9kHz"},
}

// Valid reports whether r is one of the four documented resolutions.
func (r PWMResolution) Valid() bool {
	return int(r) < len(pwmResolutions)
}

// Frequency returns the PWM carrier frequency, or 0 for an unknown code.
func (r PWMResolution) Frequency() physic.Frequency {
	if !r.Valid() {
		return 0
	}
	return pwmResolutions[r].freq
}

// SevenBit reports whether the speed register only holds 7 bits at this
// resolution.
func (r PWMResolution) SevenBit() bool {
	return r == PWM31kHz7Bit || r == PWM7kHz7Bit
}

func (r PWMResolution) String() string {
	if !r.Valid() {
		return fmt.Sprintf("unknown value: %d", uint8(r))
	}
	return pwmResolutions[r].label
}

// PWMResolutionFor returns the resolution whose carrier is exactly f.
func PWMResolutionFor(f physic.Frequency) (PWMResolution, bool) {
	for i := range pwmResolutions {
		if pwmResolutions[i].freq == f {
			return PWMResolution(i), true
		}
	}
	return 0, false
}
