// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package qikbus is a container for the drivers of a Pololu Qik motor
// controller bus and the board peripherals around it.
//
// qik speaks the controller protocol over any conn.Conn, serialport provides
// that connection on a UART, gpioexport and rotary cover the digital pins and
// encoders, and cmd/qikctl ties them together in a shell.
package qikbus
