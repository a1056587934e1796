// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpioexport drives digital lines through the Linux sysfs GPIO export
// interface, addressing them by their board connector names.
//
// A line is named either after its header position, like "P8_3" or "P9_12",
// or after its GPIO bank, like "GPIO1_6" (bank 1, bit 6, kernel line 38), or
// directly after its kernel line, like "GPIO_38". Names are translated
// through the Board table before anything is written to sysfs.
//
// Exported lines are returned as *Pin, which implements gpio.PinIO.
package gpioexport
