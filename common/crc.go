// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC-7 used by Pololu serial controllers.
package common

// CRC7Poly is the bit-reversed form of x^7 + x^3 + 1 used by Pololu serial
// devices.
const CRC7Poly byte = 0x91

// CRC7 calculates the 7-bit CRC of the byte slice parameter and returns the
// calculated value. Bytes are processed least significant bit first, so the
// result always has its most significant bit clear and can be sent as a
// serial data byte.
func CRC7(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		crc ^= val
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc ^= CRC7Poly
			}
			crc >>= 1
		}
	}
	return crc
}
