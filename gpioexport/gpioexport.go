// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpioexport

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
)

// DefaultRoot is where the kernel exposes the GPIO export interface.
const DefaultRoot = "/sys/class/gpio"

// Direction is the direction of a line.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

var (
	// ErrInvalidDirection is returned for a direction other than In or Out.
	ErrInvalidDirection = errors.New("gpioexport: invalid direction, should be one of 'in' or 'out'")
	// ErrInvalidEdge is returned for an edge sysfs cannot detect.
	ErrInvalidEdge = errors.New("gpioexport: invalid edge, should be one of 'none', 'rising', 'falling' or 'both'")
)

var edgeNames = map[gpio.Edge]string{
	gpio.NoEdge:      "none",
	gpio.RisingEdge:  "rising",
	gpio.FallingEdge: "falling",
	gpio.BothEdges:   "both",
}

var lineDirRE = regexp.MustCompile(`^gpio(\d{1,3})$`)

// Opts holds the configuration options.
type Opts struct {
	// Root is the sysfs GPIO directory. Defaults to DefaultRoot.
	Root string
	// Board translates pin names. Defaults to BeagleBoneBlack.
	Board *Board
	// ExportWait is how long to wait for the kernel to create the line
	// directory after an export. Defaults to one second.
	ExportWait time.Duration
}

// Exporter exports lines and hands them out as pins.
type Exporter struct {
	root  string
	board *Board
	wait  time.Duration
}

// New returns an Exporter. opts may be nil.
func New(opts *Opts) *Exporter {
	e := &Exporter{root: DefaultRoot, board: BeagleBoneBlack, wait: time.Second}
	if opts != nil {
		if opts.Root != "" {
			e.root = opts.Root
		}
		if opts.Board != nil {
			e.board = opts.Board
		}
		if opts.ExportWait > 0 {
			e.wait = opts.ExportWait
		}
	}
	return e
}

// Board returns the board used to translate pin names.
func (e *Exporter) Board() *Board {
	return e.board
}

// Export exports the line designated by name, if not already exported, and
// returns it as a pin.
func (e *Exporter) Export(name string) (*Pin, error) {
	line, err := e.board.Line(name)
	if err != nil {
		return nil, err
	}
	if _, err := e.export(line); err != nil {
		return nil, err
	}
	if err := e.waitForLine(line); err != nil {
		return nil, err
	}
	return e.pin(name, line), nil
}

// SetMode exports the line designated by name and optionally sets its
// direction and edge. An empty dir or gpio.NoEdge leaves that setting alone.
//
// It returns true when the line was newly exported or reconfigured.
func (e *Exporter) SetMode(name string, dir Direction, edge gpio.Edge) (bool, error) {
	line, err := e.board.Line(name)
	if err != nil {
		return false, err
	}
	if dir != "" && dir != In && dir != Out {
		return false, fmt.Errorf("%w: %q for %s", ErrInvalidDirection, dir, name)
	}
	if _, ok := edgeNames[edge]; !ok {
		return false, fmt.Errorf("%w: %s for %s", ErrInvalidEdge, edge, name)
	}
	changed, err := e.export(line)
	if err != nil {
		return false, err
	}
	if dir == "" && edge == gpio.NoEdge {
		return changed, nil
	}
	if err := e.waitForLine(line); err != nil {
		return false, err
	}
	p := e.pin(name, line)
	if dir != "" {
		if err := p.SetDirection(dir); err != nil {
			return false, err
		}
	}
	if edge != gpio.NoEdge {
		if err := p.SetEdge(edge); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Unexport releases the line designated by name. It returns false when the
// line was not exported.
func (e *Exporter) Unexport(name string) (bool, error) {
	line, err := e.board.Line(name)
	if err != nil {
		return false, err
	}
	return e.unexport(line)
}

// Cleanup unexports every exported line. It returns true when at least one
// line was released.
func (e *Exporter) Cleanup() (bool, error) {
	lines, err := e.Active()
	if err != nil {
		return false, err
	}
	result := false
	var errs []error
	for _, line := range lines {
		ok, err := e.unexport(line)
		errs = append(errs, err)
		result = result || ok
	}
	return result, errors.Join(errs...)
}

// Active returns the exported lines, sorted.
func (e *Exporter) Active() ([]int, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		return nil, fmt.Errorf("gpioexport: %w", err)
	}
	var lines []int
	for _, entry := range entries {
		m := lineDirRE.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		line, _ := strconv.Atoi(m[1])
		lines = append(lines, line)
	}
	slices.Sort(lines)
	return lines, nil
}

func (e *Exporter) pin(name string, line int) *Pin {
	p := &Pin{name: strings.ToUpper(name), line: line, dir: e.lineDir(line), edge: gpio.NoEdge}
	p.last = p.Read()
	return p
}

func (e *Exporter) lineDir(line int) string {
	return filepath.Join(e.root, "gpio"+strconv.Itoa(line))
}

func (e *Exporter) exported(line int) bool {
	_, err := os.Stat(e.lineDir(line))
	return err == nil
}

func (e *Exporter) export(line int) (bool, error) {
	if e.exported(line) {
		return false, nil
	}
	glog.V(1).Infof("gpioexport: exporting line %d", line)
	if err := writeFile(filepath.Join(e.root, "export"), strconv.Itoa(line)); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Exporter) unexport(line int) (bool, error) {
	if !e.exported(line) {
		return false, nil
	}
	glog.V(1).Infof("gpioexport: unexporting line %d", line)
	if err := writeFile(filepath.Join(e.root, "unexport"), strconv.Itoa(line)); err != nil {
		return false, err
	}
	deadline := time.Now().Add(e.wait)
	for e.exported(line) {
		if time.Now().After(deadline) {
			return true, fmt.Errorf("gpioexport: line %d still exported after %s", line, e.wait)
		}
		time.Sleep(time.Millisecond)
	}
	return true, nil
}

// waitForLine waits until the kernel created the attributes of a freshly
// exported line and they became writable.
func (e *Exporter) waitForLine(line int) error {
	path := filepath.Join(e.lineDir(line), "direction")
	deadline := time.Now().Add(e.wait)
	for {
		f, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err == nil {
			return f.Close()
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("gpioexport: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("gpioexport: line %d not ready after %s: %w", line, e.wait, err)
		}
		time.Sleep(time.Millisecond)
	}
}

func writeFile(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("gpioexport: %w", err)
	}
	n, err := f.WriteString(value)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("gpioexport: %w", err)
	}
	if n != len(value) {
		return fmt.Errorf("gpioexport: wrote %d of %d bytes to %s", n, len(value), path)
	}
	return nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("gpioexport: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
