// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
	"periph.io/x/conn/v3"
)

// DefaultBaudRate is the baud rate used when Config.BaudRate is zero.
const DefaultBaudRate = 38400

// DefaultReadTimeout is the read timeout used when Config.ReadTimeout is zero.
const DefaultReadTimeout = time.Second

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("serialport: read timeout")

// TimeoutError is returned by Tx when the device stops sending before the
// read buffer is full.
//
// After a timeout the state of the link is unknown: part of the request may
// still be buffered by the device.
type TimeoutError struct {
	Port string
	Want int
	Got  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("serialport: %s: read timeout after %d of %d bytes", e.Port, e.Got, e.Want)
}

// Timeout reports true. It lets callers classify the error without importing
// this package.
func (e *TimeoutError) Timeout() bool {
	return true
}

// Is makes errors.Is(err, ErrTimeout) work.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Port is the subset of a serial port used by Conn.
//
// serial.Port from go.bug.st/serial implements it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Config describes how to open a serial port.
//
// The line is always configured 8N1.
type Config struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// Conn is a half duplex serial connection.
type Conn struct {
	mu      sync.Mutex
	p       Port
	name    string
	timeout time.Duration
}

// Open opens the serial port name and returns it as a conn.Conn.
//
// cfg may be nil, in which case DefaultBaudRate and DefaultReadTimeout are
// used. Any input left over from a previous user of the port is discarded.
func Open(name string, cfg *Config) (*Conn, error) {
	c := Config{BaudRate: DefaultBaudRate, ReadTimeout: DefaultReadTimeout}
	if cfg != nil {
		if cfg.BaudRate != 0 {
			c.BaudRate = cfg.BaudRate
		}
		if cfg.ReadTimeout != 0 {
			c.ReadTimeout = cfg.ReadTimeout
		}
	}
	if c.BaudRate < 0 || c.ReadTimeout < 0 {
		return nil, fmt.Errorf("serialport: invalid config %+v", c)
	}
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: failed to open %s: %w", name, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serialport: %s: %w", name, err)
	}
	conn, err := New(p, name, c.ReadTimeout)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	glog.V(1).Infof("serialport: opened %s at %d baud", name, c.BaudRate)
	return conn, nil
}

// New wraps an already opened port.
//
// name is only used for String and error messages.
func New(p Port, name string, readTimeout time.Duration) (*Conn, error) {
	if readTimeout <= 0 {
		return nil, fmt.Errorf("serialport: %s: read timeout must be positive, got %s", name, readTimeout)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		return nil, fmt.Errorf("serialport: %s: %w", name, err)
	}
	return &Conn{p: p, name: name, timeout: readTimeout}, nil
}

// List returns the names of the serial ports present on the host.
func List() ([]string, error) {
	return serial.GetPortsList()
}

// String implements conn.Resource.
func (c *Conn) String() string {
	return c.name
}

// Halt implements conn.Resource.
//
// It is a no-op; a serial write cannot be interrupted.
func (c *Conn) Halt() error {
	return nil
}

// Duplex implements conn.Conn.
func (c *Conn) Duplex() conn.Duplex {
	return conn.Half
}

// ReadTimeout returns the current read timeout.
func (c *Conn) ReadTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// SetReadTimeout changes how long Tx waits for each chunk of the reply.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("serialport: %s: read timeout must be positive, got %s", c.name, d)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.p.SetReadTimeout(d); err != nil {
		return fmt.Errorf("serialport: %s: %w", c.name, err)
	}
	c.timeout = d
	return nil
}

// Tx writes w and then reads exactly len(r) bytes into r.
//
// Either may be empty. The port stays locked for the whole exchange.
func (c *Conn) Tx(w, r []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.p == nil {
		return fmt.Errorf("serialport: %s: %w", c.name, io.ErrClosedPipe)
	}
	if len(w) != 0 {
		n, err := c.p.Write(w)
		if err != nil {
			return fmt.Errorf("serialport: %s: write: %w", c.name, err)
		}
		if n != len(w) {
			return fmt.Errorf("serialport: %s: short write %d of %d bytes", c.name, n, len(w))
		}
	}
	for got := 0; got < len(r); {
		n, err := c.p.Read(r[got:])
		if err != nil {
			return fmt.Errorf("serialport: %s: read: %w", c.name, err)
		}
		if n == 0 {
			// go.bug.st/serial reports an expired read timeout as an empty
			// read without error.
			return &TimeoutError{Port: c.name, Want: len(r), Got: got}
		}
		got += n
	}
	return nil
}

// Close closes the underlying port. Further Tx calls fail.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.p == nil {
		return nil
	}
	err := c.p.Close()
	c.p = nil
	return err
}

var _ conn.Conn = &Conn{}
