// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/GermanBionicSystems/qikbus/qik"
	"github.com/GermanBionicSystems/qikbus/serialport"
)

// command is a shell command. run returns the text to print.
type command struct {
	name  string
	usage string
	help  string
	args  int
	run   func(a *app, args []string) (string, error)
}

var errUsage = errors.New("usage")

func (c *command) exec(a *app, args []string) (string, error) {
	if len(args) < c.args {
		return "", fmt.Errorf("%w: %s %s", errUsage, c.name, c.usage)
	}
	return c.run(a, args)
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

var commands = []command{
	{
		name:  "fw",
		usage: "[DEVICE]",
		help:  "firmware version",
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 0)
			if err != nil {
				return "", err
			}
			v, err := a.dev.GetFirmwareVersion(id)
			if err != nil {
				return "", err
			}
			return strconv.Itoa(v), nil
		},
	},
	{
		name:  "error",
		usage: "[DEVICE]",
		help:  "read and clear the error register",
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 0)
			if err != nil {
				return "", err
			}
			e, err := a.dev.GetError(id)
			if err != nil {
				return "", err
			}
			return e.String(), nil
		},
	},
	{
		name:  "config",
		usage: "PARAMETER [DEVICE]",
		help:  "read a configuration parameter",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			p, err := parseParameter(args[0])
			if err != nil {
				return "", err
			}
			id, err := a.device(args, 1)
			if err != nil {
				return "", err
			}
			v, err := a.dev.GetConfig(p, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s: %d", p, v), nil
		},
	},
	{
		name:  "setconfig",
		usage: "PARAMETER VALUE [DEVICE]",
		help:  "write a configuration parameter",
		args:  2,
		run: func(a *app, args []string) (string, error) {
			p, err := parseParameter(args[0])
			if err != nil {
				return "", err
			}
			v, err := strconv.ParseUint(args[1], 0, 8)
			if err != nil {
				return "", fmt.Errorf("invalid value %q", args[1])
			}
			id, err := a.device(args, 2)
			if err != nil {
				return "", err
			}
			r, err := a.dev.SetConfig(p, uint8(v), id)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		},
	},
	{
		name:  "id",
		usage: "[DEVICE]",
		help:  "read the device id",
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 0)
			if err != nil {
				return "", err
			}
			v, err := a.dev.GetDeviceID(id)
			if err != nil {
				return "", err
			}
			return strconv.Itoa(int(v)), nil
		},
	},
	{
		name:  "setid",
		usage: "ID [DEVICE]",
		help:  "change the device id",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			v, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return "", fmt.Errorf("invalid id %q", args[0])
			}
			id, err := a.device(args, 1)
			if err != nil {
				return "", err
			}
			r, err := a.dev.SetDeviceID(uint8(v), id)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		},
	},
	{
		name:  "pwm",
		usage: "[DEVICE]",
		help:  "read the PWM resolution",
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 0)
			if err != nil {
				return "", err
			}
			r, err := a.dev.GetPWMFrequency(id)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		},
	},
	{
		name:  "setpwm",
		usage: "CODE|FREQUENCY [DEVICE]",
		help:  "set the PWM resolution, by code 0-3 or frequency like 15.7kHz",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			var f physic.Frequency
			if code, err := strconv.ParseUint(args[0], 10, 8); err == nil {
				r := qik.PWMResolution(code)
				if !r.Valid() {
					return "", fmt.Errorf("invalid PWM code %d", code)
				}
				f = r.Frequency()
			} else if err := f.Set(args[0]); err != nil {
				return "", fmt.Errorf("invalid frequency %q: %w", args[0], err)
			}
			id, err := a.device(args, 1)
			if err != nil {
				return "", err
			}
			r, err := a.dev.SetPWMFrequency(f, id)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		},
	},
	{
		name:  "shutdown",
		usage: "[DEVICE]",
		help:  "whether motors stop on a serial error",
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 0)
			if err != nil {
				return "", err
			}
			on, err := a.dev.GetMotorShutdownOnError(id)
			if err != nil {
				return "", err
			}
			if on {
				return "on", nil
			}
			return "off", nil
		},
	},
	{
		name:  "setshutdown",
		usage: "on|off [DEVICE]",
		help:  "stop the motors on a serial error",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			on, err := parseOnOff(args[0])
			if err != nil {
				return "", fmt.Errorf("invalid value %q, should be on or off", args[0])
			}
			id, err := a.device(args, 1)
			if err != nil {
				return "", err
			}
			r, err := a.dev.SetMotorShutdownOnError(on, id)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		},
	},
	{
		name:  "timeout",
		usage: "[DEVICE]",
		help:  "read the serial timeout, 0s when disabled",
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 0)
			if err != nil {
				return "", err
			}
			d, err := a.dev.GetSerialTimeout(id)
			if err != nil {
				return "", err
			}
			return d.String(), nil
		},
	},
	{
		name:  "settimeout",
		usage: "DURATION [DEVICE]",
		help:  "set the serial timeout, rounded to the closest supported value",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return "", err
			}
			id, err := a.device(args, 1)
			if err != nil {
				return "", err
			}
			r, err := a.dev.SetSerialTimeout(d, id)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s)", r, qik.DecodeTimeout(qik.QuantizeTimeout(d))), nil
		},
	},
	{
		name:  "speed",
		usage: "MOTOR SPEED [DEVICE]",
		help:  "drive a motor, SPEED in -255..255",
		args:  2,
		run: func(a *app, args []string) (string, error) {
			m, err := parseMotor(args[0])
			if err != nil {
				return "", err
			}
			s, err := strconv.Atoi(args[1])
			if err != nil {
				return "", fmt.Errorf("invalid speed %q", args[1])
			}
			id, err := a.device(args, 2)
			if err != nil {
				return "", err
			}
			return "", a.dev.SetSpeed(s, m, id)
		},
	},
	{
		name:  "coast",
		usage: "MOTOR|all [DEVICE]",
		help:  "let a motor coast",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			id, err := a.device(args, 1)
			if err != nil {
				return "", err
			}
			if strings.EqualFold(args[0], "all") {
				return "", errors.Join(a.dev.SetM0Coast(id), a.dev.SetM1Coast(id))
			}
			m, err := parseMotor(args[0])
			if err != nil {
				return "", err
			}
			return "", a.dev.Coast(m, id)
		},
	},
	{
		name:  "protocol",
		usage: "[addressed|compact]",
		help:  "show or switch the protocol",
		run: func(a *app, args []string) (string, error) {
			if len(args) == 0 {
				return a.dev.Protocol().String(), nil
			}
			p, err := parseProtocol(args[0])
			if err != nil {
				return "", err
			}
			if err := a.dev.SetProtocol(p); err != nil {
				return "", err
			}
			return p.String(), nil
		},
	},
	{
		name:  "scan",
		usage: "[ID...]",
		help:  "look for controllers, all ids by default",
		run: func(a *app, args []string) (string, error) {
			ids := make([]uint8, 0, len(args))
			for _, s := range args {
				id, err := a.parseDevice(s)
				if err != nil {
					return "", err
				}
				ids = append(ids, id)
			}
			found, err := a.dev.Scan(ids...)
			if len(found) == 0 && err == nil {
				return "no controller found", nil
			}
			return formatIDs(found), err
		},
	},
	{
		name: "devices",
		help: "list the controllers with a known PWM resolution",
		run: func(a *app, args []string) (string, error) {
			var b strings.Builder
			for _, id := range a.dev.Devices() {
				r, _ := a.dev.PWMResolution(id)
				fmt.Fprintf(&b, "%3d %-10s %s\n", id, a.cfg.deviceName(id), r)
			}
			return strings.TrimSuffix(b.String(), "\n"), nil
		},
	},
	{
		name: "ports",
		help: "list the serial ports",
		run: func(a *app, args []string) (string, error) {
			ports, err := serialport.List()
			if err != nil {
				return "", err
			}
			sort.Strings(ports)
			return strings.Join(ports, "\n"), nil
		},
	},
	{
		name:  "gpio",
		usage: gpioUsage,
		help:  "drive a digital pin",
		args:  1,
		run:   gpioCmd,
	},
	{
		name:  "encoder",
		usage: "NAME [reset]",
		help:  "position of a rotary encoder, in detents",
		args:  1,
		run: func(a *app, args []string) (string, error) {
			e, err := a.encoder(args[0])
			if err != nil {
				return "", err
			}
			a.mu.Lock()
			defer a.mu.Unlock()
			if len(args) > 1 && args[1] == "reset" {
				e.d.Init()
				e.pos = 0
			}
			return strconv.Itoa(e.read()), nil
		},
	},
}

const gpioUsage = "PIN [read|high|low|in [EDGE]|unexport] | cleanup"

func gpioCmd(a *app, args []string) (string, error) {
	if args[0] == "cleanup" {
		ok, err := a.gpio.Cleanup()
		if err != nil {
			return "", err
		}
		if !ok {
			return "nothing exported", nil
		}
		return "", nil
	}
	op := "read"
	if len(args) > 1 {
		op = strings.ToLower(args[1])
	}
	if op == "unexport" {
		ok, err := a.gpio.Unexport(args[0])
		if err != nil {
			return "", err
		}
		if !ok {
			return args[0] + " was not exported", nil
		}
		return "", nil
	}
	p, err := a.pin(args[0])
	if err != nil {
		return "", err
	}
	switch op {
	case "read":
		return p.Read().String(), nil
	case "high":
		return "", p.Out(gpio.High)
	case "low":
		return "", p.Out(gpio.Low)
	case "in":
		edge := gpio.NoEdge
		if len(args) > 2 {
			if edge, err = parseEdge(args[2]); err != nil {
				return "", err
			}
		}
		if err := p.In(gpio.PullNoChange, edge); err != nil {
			return "", err
		}
		return p.Read().String(), nil
	default:
		return "", fmt.Errorf("%w: gpio %s", errUsage, gpioUsage)
	}
}

func formatIDs(ids []uint8) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.Itoa(int(id))
	}
	return strings.Join(s, " ")
}
