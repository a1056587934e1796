// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpioexport

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// pollInterval is how often WaitForEdge samples a line that cannot be
// watched with epoll.
const pollInterval = time.Millisecond

// Pin is an exported line.
//
// Pull resistors and PWM are not reachable through sysfs. Edges are waited
// for with epoll on the value attribute. Where the attribute cannot be polled,
// as on a regular file, the value is sampled instead and pulses shorter than
// about a millisecond can be missed.
type Pin struct {
	name string
	line int
	dir  string

	mu    sync.Mutex
	edge  gpio.Edge
	last  gpio.Level
	watch *edgeWatcher
}

// String implements conn.Resource.
func (p *Pin) String() string {
	return fmt.Sprintf("%s(%d)", p.name, p.line)
}

// Halt implements conn.Resource. It stops edge detection until the next In
// or SetEdge.
func (p *Pin) Halt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.edge = gpio.NoEdge
	return p.closeWatch()
}

// closeWatch releases the epoll watcher. p.mu must be held.
func (p *Pin) closeWatch() error {
	if p.watch == nil {
		return nil
	}
	err := p.watch.Close()
	p.watch = nil
	return err
}

// Name implements pin.Pin.
func (p *Pin) Name() string {
	return p.name
}

// Number implements pin.Pin. It is the kernel line number.
func (p *Pin) Number() int {
	return p.line
}

// Function implements pin.Pin.
func (p *Pin) Function() string {
	d, err := p.Direction()
	switch {
	case err != nil:
		return "ERR"
	case d == Out:
		return "Out/" + p.Read().String()
	default:
		return "In/" + p.Read().String()
	}
}

// Direction returns the direction of the line.
func (p *Pin) Direction() (Direction, error) {
	v, err := readFile(filepath.Join(p.dir, "direction"))
	if err != nil {
		return "", err
	}
	return Direction(v), nil
}

// SetDirection sets the direction of the line.
func (p *Pin) SetDirection(dir Direction) error {
	if dir != In && dir != Out {
		return fmt.Errorf("%w: %q for %s", ErrInvalidDirection, dir, p.name)
	}
	return writeFile(filepath.Join(p.dir, "direction"), string(dir))
}

// Edge returns the edge the kernel detects on the line.
func (p *Pin) Edge() (gpio.Edge, error) {
	v, err := readFile(filepath.Join(p.dir, "edge"))
	if err != nil {
		return gpio.NoEdge, err
	}
	for e, name := range edgeNames {
		if name == v {
			return e, nil
		}
	}
	return gpio.NoEdge, fmt.Errorf("%w: %q read for %s", ErrInvalidEdge, v, p.name)
}

// SetEdge selects the edge detected on the line.
func (p *Pin) SetEdge(edge gpio.Edge) error {
	name, ok := edgeNames[edge]
	if !ok {
		return fmt.Errorf("%w: %s for %s", ErrInvalidEdge, edge, p.name)
	}
	if err := writeFile(filepath.Join(p.dir, "edge"), name); err != nil {
		return err
	}
	var w *edgeWatcher
	if edge != gpio.NoEdge {
		var err error
		if w, err = newEdgeWatcher(filepath.Join(p.dir, "value")); err != nil {
			glog.V(1).Infof("gpioexport: %s: sampling for edges: %v", p.name, err)
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err := p.closeWatch()
	p.edge = edge
	p.watch = w
	return err
}

// In implements gpio.PinIn.
//
// pull must be gpio.PullNoChange or gpio.Float.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if pull != gpio.PullNoChange && pull != gpio.Float {
		return fmt.Errorf("gpioexport: %s: pull %s is not supported", p.name, pull)
	}
	if err := p.SetDirection(In); err != nil {
		return err
	}
	if err := p.SetEdge(edge); err != nil {
		return err
	}
	l := p.Read()
	p.mu.Lock()
	p.last = l
	p.mu.Unlock()
	return nil
}

// Read implements gpio.PinIn.
//
// A line that cannot be read reads as gpio.Low.
func (p *Pin) Read() gpio.Level {
	v, err := readFile(filepath.Join(p.dir, "value"))
	if err != nil {
		return gpio.Low
	}
	return gpio.Level(v == "1")
}

// WaitForEdge implements gpio.PinIn.
//
// It returns false right away when no edge was selected with In or SetEdge.
// A negative timeout waits forever.
func (p *Pin) WaitForEdge(timeout time.Duration) bool {
	p.mu.Lock()
	edge, last, w := p.edge, p.last, p.watch
	p.mu.Unlock()
	if edge == gpio.NoEdge {
		return false
	}
	if w != nil {
		ok, err := w.wait(timeout)
		if err != nil {
			glog.V(1).Infof("gpioexport: %s: %v", p.name, err)
			return false
		}
		if ok {
			l := p.Read()
			p.mu.Lock()
			p.last = l
			p.mu.Unlock()
		}
		return ok
	}
	deadline := time.Now().Add(timeout)
	for {
		if l := p.Read(); l != last {
			p.mu.Lock()
			p.last = l
			p.mu.Unlock()
			if edge == gpio.BothEdges || (edge == gpio.RisingEdge) == bool(l) {
				return true
			}
			last = l
		}
		if timeout >= 0 && time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}

// Pull implements gpio.PinIn.
func (p *Pin) Pull() gpio.Pull {
	return gpio.PullNoChange
}

// DefaultPull implements gpio.PinIn.
func (p *Pin) DefaultPull() gpio.Pull {
	return gpio.PullNoChange
}

// Out implements gpio.PinOut.
func (p *Pin) Out(l gpio.Level) error {
	if d, err := p.Direction(); err != nil {
		return err
	} else if d != Out {
		if err := p.SetDirection(Out); err != nil {
			return err
		}
	}
	v := "0"
	if l {
		v = "1"
	}
	return writeFile(filepath.Join(p.dir, "value"), v)
}

// PWM implements gpio.PinOut. It is not supported.
func (p *Pin) PWM(duty gpio.Duty, f physic.Frequency) error {
	return errors.New("gpioexport: PWM is not supported through sysfs")
}

var _ gpio.PinIO = &Pin{}
