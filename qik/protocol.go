// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"fmt"

	"github.com/GermanBionicSystems/qikbus/common"
	"github.com/golang/glog"
)

// Protocol is the serial framing used on the bus. Exactly one protocol is
// active per connection.
type Protocol uint8

const (
	// Addressed is the Pololu protocol: every command starts with the baud
	// detection byte and the id of the target controller.
	Addressed Protocol = iota
	// Compact omits the address and sets the high bit of the command byte.
	// Only one controller may be on the bus.
	Compact
)

func (p Protocol) String() string {
	switch p {
	case Addressed:
		return "Pololu Protocol"
	case Compact:
		return "Compact Protocol"
	default:
		return fmt.Sprintf("unknown value: %d", uint8(p))
	}
}

// baudDetect starts every addressed frame. Sent alone, it lets the controller
// detect the baud rate.
const baudDetect byte = 0xAA

// configTrailer must follow the value of every configuration write.
var configTrailer = [...]byte{0x55, 0x2A}

// command represents Qik command codes. See the "Command reference" section
// of the Qik user's guide for details.
type command uint8

const (
	cmdGetFirmwareVersion command = 0x01
	cmdGetError           command = 0x02
	cmdGetConfig          command = 0x03
	cmdSetConfig          command = 0x04
	cmdM0Coast            command = 0x06
	cmdM1Coast            command = 0x07
	cmdM0Forward7Bit      command = 0x08
	cmdM0Forward8Bit      command = 0x09
	cmdM0Reverse7Bit      command = 0x0A
	cmdM0Reverse8Bit      command = 0x0B
	cmdM1Forward7Bit      command = 0x0C
	cmdM1Forward8Bit      command = 0x0D
	cmdM1Reverse7Bit      command = 0x0E
	cmdM1Reverse8Bit      command = 0x0F
)

// framers holds one frame builder per protocol.
var framers = [...]func(cmd command, device uint8, params []byte) []byte{
	Addressed: addressedFrame,
	Compact:   compactFrame,
}

func (p Protocol) valid() bool {
	return int(p) < len(framers)
}

// addressedFrame returns [0xAA, device, cmd, params...].
func addressedFrame(cmd command, device uint8, params []byte) []byte {
	b := make([]byte, 0, 3+len(params))
	b = append(b, baudDetect, device, byte(cmd))
	return append(b, params...)
}

// compactFrame returns [cmd|0x80, params...]. device is not sent.
func compactFrame(cmd command, _ uint8, params []byte) []byte {
	b := make([]byte, 0, 1+len(params))
	b = append(b, byte(cmd)|0x80)
	return append(b, params...)
}

// buildFrame encodes a command for protocol p. It does no I/O.
func buildFrame(p Protocol, cmd command, device uint8, params ...byte) []byte {
	return framers[p](cmd, device, params)
}

// frame builds the frame for the current protocol, with the CRC byte when
// enabled. d.mu must be held.
func (d *Dev) frame(cmd command, device uint8, params []byte) []byte {
	b := buildFrame(d.protocol, cmd, device, params...)
	if d.crc {
		b = append(b, common.CRC7(b))
	}
	return b
}

// send writes a command that has no reply. d.mu must be held.
func (d *Dev) send(cmd command, device uint8, params ...byte) error {
	w := d.frame(cmd, device, params)
	glog.V(2).Infof("qik: tx % x", w)
	if err := d.c.Tx(w, nil); err != nil {
		return transportError(err)
	}
	return nil
}

// query writes a command and reads its single byte reply. d.mu must be held.
func (d *Dev) query(cmd command, device uint8, params ...byte) (byte, error) {
	w := d.frame(cmd, device, params)
	var r [1]byte
	glog.V(2).Infof("qik: tx % x", w)
	if err := d.c.Tx(w, r[:]); err != nil {
		return 0, transportError(err)
	}
	glog.V(2).Infof("qik: rx %02x", r[0])
	return r[0], nil
}
