// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// qikctl drives Pololu Qik motor controllers on a serial bus, plus the
// digital pins and rotary encoders of the board, from an interactive shell.
//
// Usage:
//
//	qikctl [-config board.yaml] [-e COMMAND [ARGS...]]
//
// The serial port and protocol are read from the environment (QIK_PORT,
// QIK_BAUD, QIK_READ_TIMEOUT, QIK_PROTOCOL, QIK_CRC, QIK_DEVICE,
// QIK_GPIO_ROOT) and can be overridden by the board file, which also names
// controllers and encoders:
//
//	port: /dev/ttyO1
//	devices:
//	  left: 10
//	  right: 11
//	encoders:
//	  knob: {a: P8_3, b: P8_4, steps: 4}
//
// Logging is configured with the glog flags, like -v 2 -logtostderr to trace
// every frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/golang/glog"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/qikbus/gpioexport"
	"github.com/GermanBionicSystems/qikbus/qik"
	"github.com/GermanBionicSystems/qikbus/serialport"
)

func mainImpl() error {
	configPath := flag.String("config", "", "YAML board file")
	evalOnly := flag.Bool("e", false, "run the command given as arguments and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if _, err := host.Init(); err != nil {
		return err
	}
	proto, err := parseProtocol(cfg.Protocol)
	if err != nil {
		return err
	}
	port, err := serialport.Open(cfg.Port, &serialport.Config{BaudRate: cfg.BaudRate, ReadTimeout: cfg.ReadTimeout})
	if err != nil {
		return err
	}
	defer port.Close()
	dev, err := qik.New(port, &qik.Opts{Protocol: proto, CRC: cfg.CRC})
	if err != nil {
		return err
	}
	glog.Infof("%s ready, %s", dev, proto)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	a := newApp(ctx, cfg, dev, gpioexport.New(&gpioexport.Opts{Root: cfg.GPIORoot}))
	s := newShell(a)
	defer s.Close()

	if *evalOnly {
		args := strings.Fields(strings.Join(flag.Args(), " "))
		if len(args) == 0 {
			return fmt.Errorf("-e requires a command")
		}
		return s.eval(args...)
	}
	s.Println("Qik shell, type help for the commands")
	s.Run()
	if err := dev.Halt(); err != nil {
		glog.Errorf("halt: %v", err)
	}
	return nil
}

func main() {
	defer glog.Flush()
	if err := mainImpl(); err != nil {
		glog.Errorf("qikctl: %v", err)
		fmt.Fprintf(os.Stderr, "qikctl: %s.\n", err)
		glog.Flush()
		os.Exit(1)
	}
}
