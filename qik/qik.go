// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

// DefaultDeviceID is the factory device id of a Qik.
const DefaultDeviceID uint8 = 0x09

// MaxDeviceID is the highest device id usable in the addressed protocol.
const MaxDeviceID uint8 = 0x7F

// Firmware versions reported by GetFirmwareVersion.
const (
	Version1 = 1
	Version2 = 2
)

// Motor selects one of the two channels of the controller.
type Motor uint8

const (
	M0 Motor = 0
	M1 Motor = 1
)

func (m Motor) String() string {
	return fmt.Sprintf("M%d", uint8(m))
}

// Opts holds the configuration options.
type Opts struct {
	// Protocol is the framing to use once the device is created. Selecting
	// Compact sends the baud detection byte from New.
	Protocol Protocol
	// CRC appends a CRC-7 byte to every frame. It must match the CRC jumper
	// of the controllers on the bus.
	CRC bool
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Protocol: Addressed}

// Dev is a handle to a bus of Qik controllers sharing one serial connection.
//
// The id arguments of the methods select the controller in the addressed
// protocol; they are validated but not sent in the compact protocol.
//
// Dev is safe for concurrent use: every exchange on the wire is serialized.
type Dev struct {
	c   conn.Conn
	crc bool

	mu       sync.Mutex
	protocol Protocol
	// pwm tracks the PWM resolution last configured on each controller,
	// keyed by device id.
	pwm map[uint8]PWMResolution
}

// New returns a handle to the Qik controllers on c.
//
// c must be a half duplex connection that reads the reply of a Tx call after
// writing the request, like the one returned by serialport.Open.
//
// Create a single Dev per connection and share it. The active protocol and
// the exclusive hold of Scan belong to the Dev, so a second Dev on the same
// connection could interleave its commands or speak the other protocol.
func New(c conn.Conn, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if !opts.Protocol.valid() {
		return nil, fmt.Errorf("%w: protocol %s", ErrInvalidArgument, opts.Protocol)
	}
	d := &Dev{
		c:        c,
		crc:      opts.CRC,
		protocol: Addressed,
		pwm:      map[uint8]PWMResolution{},
	}
	if opts.Protocol != Addressed {
		if err := d.SetProtocol(opts.Protocol); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("Qik 2s9v1{%s}", d.c)
}

// Halt coasts both motors of every controller the driver knows about, or of
// the controller at DefaultDeviceID when none is known.
//
// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := d.devices()
	if len(ids) == 0 {
		ids = []uint8{DefaultDeviceID}
	}
	var errs []error
	for _, id := range ids {
		errs = append(errs, d.send(cmdM0Coast, id), d.send(cmdM1Coast, id))
	}
	return errors.Join(errs...)
}

// Protocol returns the active protocol.
func (d *Dev) Protocol() Protocol {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.protocol
}

// SetProtocol selects the framing for all following commands.
//
// Switching to Compact sends a lone baud detection byte so the controller can
// resynchronize. Switching to Addressed only changes the driver state. It is
// valid to set the current protocol again, which is how to recover after a
// timeout.
func (d *Dev) SetProtocol(p Protocol) error {
	if !p.valid() {
		return fmt.Errorf("%w: protocol %s", ErrInvalidArgument, p)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.protocol = p
	if p == Compact {
		glog.V(2).Infof("qik: tx %02x", baudDetect)
		if err := d.c.Tx([]byte{baudDetect}, nil); err != nil {
			return transportError(err)
		}
	}
	return nil
}

// GetFirmwareVersion returns the firmware version of the controller, Version1
// or Version2.
func (d *Dev) GetFirmwareVersion(device uint8) (int, error) {
	if err := checkDevice(device); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.query(cmdGetFirmwareVersion, device)
	if err != nil {
		return 0, err
	}
	// The controller answers with an ASCII digit.
	switch v {
	case '1', 0x01:
		return Version1, nil
	case '2', 0x02:
		return Version2, nil
	default:
		return 0, fmt.Errorf("%w: unexpected firmware version 0x%02X", ErrProtocol, v)
	}
}

// GetError returns the active error conditions, most significant bit first.
//
// Reading the error register clears it. When no error is active the result
// is empty.
func (d *Dev) GetError(device uint8) (ErrorConditions, error) {
	if err := checkDevice(device); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.query(cmdGetError, device)
	if err != nil {
		return nil, err
	}
	return DecodeErrorMask(v), nil
}

// GetErrorText is like GetError but returns the description of each
// condition.
func (d *Dev) GetErrorText(device uint8) ([]string, error) {
	conds, err := d.GetError(device)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(conds))
	for i, c := range conds {
		out[i] = c.String()
	}
	return out, nil
}

// GetConfig reads a configuration parameter.
func (d *Dev) GetConfig(param ConfigParameter, device uint8) (uint8, error) {
	if !param.valid() {
		return 0, fmt.Errorf("%w: config parameter %d", ErrInvalidArgument, uint8(param))
	}
	if err := checkDevice(device); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.query(cmdGetConfig, device, byte(param))
}

// SetConfig writes a configuration parameter and returns the controller's
// verdict.
//
// value must fit in 7 bits. Writing ConfigDeviceID or ConfigPWM updates the
// tracked state the same way SetDeviceID and SetPWMFrequency do.
//
// Configuration is stored in EEPROM; a new device id or PWM setting only
// takes effect after the controller is power cycled.
func (d *Dev) SetConfig(param ConfigParameter, value uint8, device uint8) (ConfigResult, error) {
	if !param.valid() {
		return 0, fmt.Errorf("%w: config parameter %d", ErrInvalidArgument, uint8(param))
	}
	if value > 0x7F {
		return 0, fmt.Errorf("%w: config value 0x%02X does not fit in 7 bits", ErrInvalidArgument, value)
	}
	if err := checkDevice(device); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setConfig(param, value, device)
}

// setConfig performs the write. d.mu must be held.
func (d *Dev) setConfig(param ConfigParameter, value uint8, device uint8) (ConfigResult, error) {
	v, err := d.query(cmdSetConfig, device, byte(param), value, configTrailer[0], configTrailer[1])
	if err != nil {
		return 0, err
	}
	res := ConfigResult(v)
	if res != ConfigOK {
		return res, nil
	}
	switch param {
	case ConfigDeviceID:
		d.moveDevice(device, value)
	case ConfigPWM:
		if r := PWMResolution(value); r.Valid() {
			d.pwm[device] = r
		}
	}
	return res, nil
}

// GetDeviceID returns the device id stored in the controller.
func (d *Dev) GetDeviceID(device uint8) (uint8, error) {
	return d.GetConfig(ConfigDeviceID, device)
}

// SetDeviceID changes the id of the controller currently reached at device
// to id.
//
// On success the PWM resolution tracked for device is moved to id.
func (d *Dev) SetDeviceID(id uint8, device uint8) (ConfigResult, error) {
	if err := checkDevice(id); err != nil {
		return 0, err
	}
	return d.SetConfig(ConfigDeviceID, id, device)
}

// GetPWMFrequency reads the PWM configuration of the controller.
//
// A code the driver does not know is returned as is; its String method
// reports it as an unknown value. A known code refreshes the tracked
// resolution used by SetSpeed.
func (d *Dev) GetPWMFrequency(device uint8) (PWMResolution, error) {
	if err := checkDevice(device); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.query(cmdGetConfig, device, byte(ConfigPWM))
	if err != nil {
		return 0, err
	}
	r := PWMResolution(v)
	if r.Valid() {
		d.pwm[device] = r
	}
	return r, nil
}

// SetPWMFrequency selects the PWM carrier frequency, which also selects the
// width of the speed register.
//
// Example:
//
//	res, err := dev.SetPWMFrequency(15700*physic.Hertz, qik.DefaultDeviceID)
//
// Only 31.5kHz, 15.7kHz, 7.8kHz and 3.9kHz are supported.
func (d *Dev) SetPWMFrequency(f physic.Frequency, device uint8) (ConfigResult, error) {
	r, ok := PWMResolutionFor(f)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported PWM frequency %s", ErrInvalidArgument, f)
	}
	return d.SetConfig(ConfigPWM, uint8(r), device)
}

// PWMResolution returns the PWM resolution tracked for device and whether one
// is tracked. Untracked controllers are assumed to run at the factory
// default, PWM31kHz7Bit.
func (d *Dev) PWMResolution(device uint8) (PWMResolution, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.pwm[device]
	return r, ok
}

// Devices returns the ids of the controllers with tracked state, sorted.
func (d *Dev) Devices() []uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.devices()
}

func (d *Dev) devices() []uint8 {
	ids := make([]uint8, 0, len(d.pwm))
	for id := range d.pwm {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// moveDevice re-keys the state of a controller whose id changed. d.mu must be
// held.
func (d *Dev) moveDevice(from, to uint8) {
	if from == to {
		return
	}
	r, ok := d.pwm[from]
	delete(d.pwm, from)
	if ok {
		d.pwm[to] = r
	} else {
		delete(d.pwm, to)
	}
}

// GetMotorShutdownOnError reports whether the controller stops the motors
// when it detects an error.
func (d *Dev) GetMotorShutdownOnError(device uint8) (bool, error) {
	v, err := d.GetConfig(ConfigMotorErrorShutdown, device)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: motor shutdown value %d", ErrProtocol, v)
	}
}

// SetMotorShutdownOnError selects whether the controller stops the motors
// when it detects an error.
func (d *Dev) SetMotorShutdownOnError(stop bool, device uint8) (ConfigResult, error) {
	var v uint8
	if stop {
		v = 1
	}
	return d.SetConfig(ConfigMotorErrorShutdown, v, device)
}

// GetSerialTimeout returns the serial timeout of the controller. Zero means
// disabled.
func (d *Dev) GetSerialTimeout(device uint8) (time.Duration, error) {
	v, err := d.GetConfig(ConfigSerialTimeout, device)
	if err != nil {
		return 0, err
	}
	return DecodeTimeout(v), nil
}

// SetSerialTimeout sets the serial timeout to the supported value closest to
// timeout. Zero disables it.
//
// Once a non-zero timeout is set, the controller raises a timeout error (and
// stops the motors if configured to) when the line stays idle for longer than
// the timeout. A caller that keeps the controller alive must send a command,
// for example GetError, more often than every half timeout. The driver does
// not do this itself.
func (d *Dev) SetSerialTimeout(timeout time.Duration, device uint8) (ConfigResult, error) {
	return d.SetConfig(ConfigSerialTimeout, QuantizeTimeout(timeout), device)
}

// speedCommands is indexed by motor, direction (reverse) and register width
// (8 bit).
var speedCommands = [2][2][2]command{
	M0: {
		{cmdM0Forward7Bit, cmdM0Forward8Bit},
		{cmdM0Reverse7Bit, cmdM0Reverse8Bit},
	},
	M1: {
		{cmdM1Forward7Bit, cmdM1Forward8Bit},
		{cmdM1Reverse7Bit, cmdM1Reverse8Bit},
	},
}

// SetSpeed sets the speed of a motor. Negative values run it in reverse.
//
// The magnitude is clamped to 255, or to 127 when the controller runs at a
// 7 bit PWM resolution. The controller does not acknowledge the command.
func (d *Dev) SetSpeed(speed int, motor Motor, device uint8) error {
	if motor > M1 {
		return fmt.Errorf("%w: motor %d", ErrInvalidArgument, uint8(motor))
	}
	if err := checkDevice(device); err != nil {
		return err
	}
	reverse := 0
	if speed < 0 {
		speed = -max(speed, -255)
		reverse = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pwm[device].SevenBit() {
		speed = min(speed, 127)
	}
	speed = min(speed, 255)
	if speed > 127 {
		return d.send(speedCommands[motor][reverse][1], device, byte(speed-128))
	}
	return d.send(speedCommands[motor][reverse][0], device, byte(speed))
}

// SetM0Speed sets the speed of motor 0.
func (d *Dev) SetM0Speed(speed int, device uint8) error {
	return d.SetSpeed(speed, M0, device)
}

// SetM1Speed sets the speed of motor 1.
func (d *Dev) SetM1Speed(speed int, device uint8) error {
	return d.SetSpeed(speed, M1, device)
}

// Coast stops driving a motor and lets it spin freely.
func (d *Dev) Coast(motor Motor, device uint8) error {
	var cmd command
	switch motor {
	case M0:
		cmd = cmdM0Coast
	case M1:
		cmd = cmdM1Coast
	default:
		return fmt.Errorf("%w: motor %d", ErrInvalidArgument, uint8(motor))
	}
	if err := checkDevice(device); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send(cmd, device)
}

// SetM0Coast lets motor 0 spin freely.
func (d *Dev) SetM0Coast(device uint8) error {
	return d.Coast(M0, device)
}

// SetM1Coast lets motor 1 spin freely.
func (d *Dev) SetM1Coast(device uint8) error {
	return d.Coast(M1, device)
}

func checkDevice(id uint8) error {
	if id > MaxDeviceID {
		return fmt.Errorf("%w: device id %d", ErrInvalidArgument, id)
	}
	return nil
}

var _ conn.Resource = &Dev{}
var _ fmt.Stringer = &Dev{}
