// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !linux

package gpioexport

import (
	"errors"
	"time"
)

type edgeWatcher struct{}

func newEdgeWatcher(path string) (*edgeWatcher, error) {
	return nil, errors.New("gpioexport: edge interrupts require linux")
}

func (w *edgeWatcher) wait(timeout time.Duration) (bool, error) {
	return false, nil
}

func (w *edgeWatcher) Close() error {
	return nil
}
