// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package rotary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Opts holds the configuration options.
type Opts struct {
	// Edge selects the edges that trigger a sample in Run. Defaults to
	// gpio.BothEdges; with a single edge per phase half of the transitions are
	// never sampled and the count drifts.
	Edge gpio.Edge
	// Debounce ignores edges on a phase closer than this to the previous one.
	Debounce time.Duration
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Edge: gpio.BothEdges}

// waitStep bounds each WaitForEdge call so Run notices cancellation.
const waitStep = 100 * time.Millisecond

// Dev is a quadrature encoder wired to two input pins.
type Dev struct {
	a, b gpio.PinIn
	opts Opts

	mu    sync.Mutex
	last  int
	delta int
}

// New configures a and b as inputs and returns an encoder primed with the
// current phase state.
func New(a, b gpio.PinIn, opts *Opts) (*Dev, error) {
	if a == nil || b == nil {
		return nil, errors.New("rotary: both phases are required")
	}
	o := DefaultOpts
	if opts != nil {
		o = *opts
		if o.Edge == gpio.NoEdge {
			o.Edge = DefaultOpts.Edge
		}
	}
	for _, p := range []gpio.PinIn{a, b} {
		if err := p.In(gpio.PullNoChange, o.Edge); err != nil {
			return nil, fmt.Errorf("rotary: %s: %w", p, err)
		}
	}
	d := &Dev{a: a, b: b, opts: o}
	d.Init()
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("Rotary{%s, %s}", d.a, d.b)
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Init resynchronizes the decoder with the pins and clears the delta.
func (d *Dev) Init() {
	s := d.state()
	d.mu.Lock()
	d.last = s
	d.delta = 0
	d.mu.Unlock()
}

// Sample reads both phases and accounts for a step when the encoder moved to
// a neighboring state.
func (d *Dev) Sample() {
	s := d.state()
	d.mu.Lock()
	defer d.mu.Unlock()
	diff := d.last - s
	if diff&1 != 0 {
		d.last = s
		d.delta += diff&2 - 1
	}
}

// Run samples the encoder on every edge of either phase until ctx is done.
func (d *Dev) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, p := range []gpio.PinIn{d.a, d.b} {
		wg.Add(1)
		go func(p gpio.PinIn) {
			defer wg.Done()
			var prev time.Time
			for ctx.Err() == nil {
				if !p.WaitForEdge(waitStep) {
					continue
				}
				now := time.Now()
				if d.opts.Debounce > 0 && now.Sub(prev) < d.opts.Debounce {
					continue
				}
				prev = now
				d.Sample()
			}
		}(p)
	}
	wg.Wait()
	return ctx.Err()
}

// Delta returns the accumulated count without consuming it.
func (d *Dev) Delta() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delta
}

// Read1 returns and clears the count of an encoder with one step per detent.
func (d *Dev) Read1() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.delta
	d.delta = 0
	return v
}

// Read2 returns the count of an encoder with two steps per detent. The odd
// step is kept for the next read.
func (d *Dev) Read2() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.delta
	d.delta &= 1
	return v >> 1
}

// Read4 returns the count of an encoder with four steps per detent. The
// remainder is kept for the next read.
func (d *Dev) Read4() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	v := d.delta
	d.delta &= 3
	return v >> 2
}

// state folds the phases into a Gray code: 0, 1, 2, 3 when turning forward.
func (d *Dev) state() int {
	s := 0
	if d.a.Read() {
		s = 3
	}
	if d.b.Read() {
		s ^= 1
	}
	return s
}
