// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpioexport

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidPin is returned for a name that does not designate a usable line
// on the board.
var ErrInvalidPin = errors.New("gpioexport: invalid pin name, should be one of P<header>_<num>, GPIO<bank>_<num> or GPIO_<num>")

// Board maps connector positions to kernel GPIO line numbers.
type Board struct {
	Name string
	// Headers maps a header number and a pin number on that header to a
	// kernel line.
	Headers map[int]map[int]int
	// Lines lists the lines that can be used as GPIO.
	Lines []int
}

// BeagleBoneBlack is the P8/P9 header layout of the BeagleBone Black.
var BeagleBoneBlack = &Board{
	Name: "BeagleBone Black",
	Headers: map[int]map[int]int{
		8: {
			3: 38, 4: 39, 5: 34, 6: 35, 7: 66, 8: 67, 9: 69, 10: 68,
			11: 45, 12: 44, 13: 23, 14: 26, 15: 47, 16: 46, 17: 27, 18: 65,
			19: 22, 20: 63, 21: 62, 22: 37, 23: 36, 24: 33, 25: 32, 26: 61,
			27: 86, 28: 88, 29: 87, 30: 89, 31: 10, 32: 11, 33: 9, 34: 81,
			35: 8, 36: 80, 37: 78, 38: 79, 39: 76, 40: 77, 41: 74, 42: 75,
			43: 72, 44: 73, 45: 70, 46: 71,
		},
		9: {
			11: 30, 12: 60, 13: 31, 14: 40, 15: 48, 16: 51, 17: 4, 18: 5,
			21: 3, 22: 2, 23: 49, 24: 15, 25: 117, 26: 14, 27: 115, 28: 123,
			29: 121, 30: 122, 31: 120, 41: 20, 42: 7,
		},
	},
	Lines: []int{
		2, 3, 4, 5, 7, 8, 9, 10, 11, 14, 15, 20, 22, 23, 26, 27, 30, 31, 32,
		33, 34, 35, 36, 37, 38, 39, 40, 44, 45, 46, 47, 48, 49, 51, 60, 61,
		62, 63, 65, 66, 67, 68, 69, 70, 71, 72, 73, 74, 75, 76, 77, 78, 79,
		80, 81, 86, 87, 88, 89, 115, 117, 120, 121, 122, 123,
	},
}

// Line translates a pin name to its kernel line number.
//
// Names are case insensitive.
func (b *Board) Line(name string) (int, error) {
	head, tail, ok := strings.Cut(strings.ToUpper(name), "_")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPin, name)
	}
	num, err := strconv.Atoi(tail)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPin, name)
	}
	line := -1
	switch {
	case len(head) == 2 && head[0] == 'P' && isDigit(head[1]):
		if l, ok := b.Headers[int(head[1]-'0')][num]; ok {
			line = l
		}
	case head == "GPIO":
		line = num
	case len(head) == 5 && strings.HasPrefix(head, "GPIO") && isDigit(head[4]):
		line = int(head[4]-'0')*32 + num
	}
	if !b.valid(line) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPin, name)
	}
	return line, nil
}

func (b *Board) valid(line int) bool {
	return slices.Contains(b.Lines, line)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
