// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/GermanBionicSystems/qikbus/gpioexport"
	"github.com/GermanBionicSystems/qikbus/qik"
	"github.com/GermanBionicSystems/qikbus/rotary"
)

// app is the state shared by the shell commands.
type app struct {
	ctx  context.Context
	cfg  *Config
	dev  *qik.Dev
	gpio *gpioexport.Exporter

	mu       sync.Mutex
	encoders map[string]*encoder
}

type encoder struct {
	d     *rotary.Dev
	steps int
	pos   int
}

func newApp(ctx context.Context, cfg *Config, dev *qik.Dev, ex *gpioexport.Exporter) *app {
	return &app{ctx: ctx, cfg: cfg, dev: dev, gpio: ex, encoders: map[string]*encoder{}}
}

// device resolves the optional device argument at index i.
func (a *app) device(args []string, i int) (uint8, error) {
	if len(args) <= i {
		return a.cfg.Device, nil
	}
	return a.parseDevice(args[i])
}

func (a *app) parseDevice(s string) (uint8, error) {
	if id, ok := a.cfg.Devices[s]; ok {
		return id, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil || v > uint64(qik.MaxDeviceID) {
		return 0, fmt.Errorf("invalid device %q", s)
	}
	return uint8(v), nil
}

// pin returns a pin registered with the host drivers or, failing that, one
// exported through sysfs.
func (a *app) pin(name string) (gpio.PinIO, error) {
	if p := gpioreg.ByName(name); p != nil {
		return p, nil
	}
	return a.gpio.Export(name)
}

// encoder returns the named encoder, starting its sampling loop on first use.
func (a *app) encoder(name string) (*encoder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.encoders[name]; ok {
		return e, nil
	}
	c, ok := a.cfg.Encoders[name]
	if !ok {
		return nil, fmt.Errorf("unknown encoder %q", name)
	}
	pa, err := a.pin(c.A)
	if err != nil {
		return nil, err
	}
	pb, err := a.pin(c.B)
	if err != nil {
		return nil, err
	}
	d, err := rotary.New(pa, pb, &rotary.Opts{Edge: gpio.BothEdges, Debounce: c.Debounce})
	if err != nil {
		return nil, err
	}
	go func() {
		if err := d.Run(a.ctx); err != nil && a.ctx.Err() == nil {
			glog.Errorf("encoder %s: %v", name, err)
		}
	}()
	e := &encoder{d: d, steps: c.Steps}
	a.encoders[name] = e
	return e, nil
}

// read accumulates the detents turned since the last read.
func (e *encoder) read() int {
	switch e.steps {
	case 2:
		e.pos += e.d.Read2()
	case 4:
		e.pos += e.d.Read4()
	default:
		e.pos += e.d.Read1()
	}
	return e.pos
}

func parseParameter(s string) (qik.ConfigParameter, error) {
	switch strings.ToLower(s) {
	case "id", "deviceid":
		return qik.ConfigDeviceID, nil
	case "pwm":
		return qik.ConfigPWM, nil
	case "shutdown":
		return qik.ConfigMotorErrorShutdown, nil
	case "timeout":
		return qik.ConfigSerialTimeout, nil
	}
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid parameter %q, should be one of id, pwm, shutdown, timeout or a number", s)
	}
	return qik.ConfigParameter(v), nil
}

func parseMotor(s string) (qik.Motor, error) {
	switch strings.ToLower(s) {
	case "m0", "0":
		return qik.M0, nil
	case "m1", "1":
		return qik.M1, nil
	default:
		return 0, fmt.Errorf("invalid motor %q, should be m0 or m1", s)
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func parseEdge(s string) (gpio.Edge, error) {
	switch strings.ToLower(s) {
	case "none":
		return gpio.NoEdge, nil
	case "rising":
		return gpio.RisingEdge, nil
	case "falling":
		return gpio.FallingEdge, nil
	case "both":
		return gpio.BothEdges, nil
	default:
		return gpio.NoEdge, fmt.Errorf("invalid edge %q, should be one of none, rising, falling or both", s)
	}
}
