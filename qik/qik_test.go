// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/conntest"
	"periph.io/x/conn/v3/physic"
)

// timeoutErr mimics the timeout error of a serial connection.
type timeoutErr struct{}

func (timeoutErr) Error() string { return "read timeout" }
func (timeoutErr) Timeout() bool { return true }

type scriptOp struct {
	w   []byte
	r   []byte
	err error
}

// scriptConn is like conntest.Playback but can fail individual exchanges.
type scriptConn struct {
	ops   []scriptOp
	count int
}

func (s *scriptConn) String() string      { return "script" }
func (s *scriptConn) Halt() error         { return nil }
func (s *scriptConn) Duplex() conn.Duplex { return conn.Half }

func (s *scriptConn) Tx(w, r []byte) error {
	if s.count >= len(s.ops) {
		return fmt.Errorf("unexpected Tx #%d % x", s.count, w)
	}
	op := s.ops[s.count]
	s.count++
	if !bytes.Equal(op.w, w) {
		return fmt.Errorf("unexpected write #%d % x, wanted % x", s.count-1, w, op.w)
	}
	if op.err != nil {
		return op.err
	}
	copy(r, op.r)
	return nil
}

func newPlayback(ops []conntest.IO) *conntest.Playback {
	return &conntest.Playback{Ops: ops, DontPanic: true}
}

func closePlayback(t *testing.T, b *conntest.Playback) {
	t.Helper()
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew(t *testing.T) {
	for _, test := range []struct {
		name      string
		opts      *Opts
		ops       []conntest.IO
		want      Protocol
		expectErr error
	}{
		{
			name: "default",
			want: Addressed,
		},
		{
			name: "compact sends baud detection",
			opts: &Opts{Protocol: Compact},
			ops: []conntest.IO{
				{W: []byte{0xAA}},
			},
			want: Compact,
		},
		{
			name:      "invalid protocol",
			opts:      &Opts{Protocol: Protocol(7)},
			expectErr: ErrInvalidArgument,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback(test.ops)
			dev, err := New(b, test.opts)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			closePlayback(t, b)
			if err != nil {
				return
			}
			if got := dev.Protocol(); got != test.want {
				t.Fatalf("wanted: %s, got: %s", test.want, got)
			}
		})
	}
}

func TestSetProtocol(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA}},
		{W: []byte{0x81}, R: []byte{'2'}},
		{W: []byte{0xAA, 0x09, 0x01}, R: []byte{'2'}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetProtocol(Compact); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.GetFirmwareVersion(DefaultDeviceID); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetProtocol(Addressed); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.GetFirmwareVersion(DefaultDeviceID); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetProtocol(Protocol(2)); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	closePlayback(t, b)
}

func TestCRC(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x02, 0x7A}, R: []byte{0x00}},
		{W: []byte{0xAA}},
		{W: []byte{0x82, 0x5B}, R: []byte{0x00}},
	})
	dev, err := New(b, &Opts{CRC: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.GetError(DefaultDeviceID); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetProtocol(Compact); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.GetError(DefaultDeviceID); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)
}

func TestGetFirmwareVersion(t *testing.T) {
	for _, test := range []struct {
		name      string
		reply     byte
		want      int
		expectErr error
	}{
		{name: "ascii 1", reply: '1', want: Version1},
		{name: "ascii 2", reply: '2', want: Version2},
		{name: "binary 2", reply: 0x02, want: Version2},
		{name: "unexpected", reply: '3', expectErr: ErrProtocol},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback([]conntest.IO{
				{W: []byte{0xAA, 0x0A, 0x01}, R: []byte{test.reply}},
			})
			dev, err := New(b, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := dev.GetFirmwareVersion(10)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			if got != test.want {
				t.Fatalf("wanted: %d, got: %d", test.want, got)
			}
			closePlayback(t, b)
		})
	}
}

func TestGetError(t *testing.T) {
	for _, test := range []struct {
		name     string
		reply    byte
		want     ErrorConditions
		wantText []string
	}{
		{
			name:     "format and overrun",
			reply:    0x48,
			want:     ErrorConditions{ErrorFormat, ErrorDataOverrun},
			wantText: []string{"Format Error", "Data Overrun Error"},
		},
		{
			name:     "timeout",
			reply:    0x80,
			want:     ErrorConditions{ErrorTimeout},
			wantText: []string{"Timeout"},
		},
		{
			name:     "none",
			reply:    0x00,
			want:     nil,
			wantText: []string{},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback([]conntest.IO{
				{W: []byte{0xAA, 0x09, 0x02}, R: []byte{test.reply}},
				{W: []byte{0xAA, 0x09, 0x02}, R: []byte{test.reply}},
			})
			dev, err := New(b, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := dev.GetError(DefaultDeviceID)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("conditions mismatch (-want +got):\n%s", diff)
			}
			text, err := dev.GetErrorText(DefaultDeviceID)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(test.wantText, text); diff != "" {
				t.Fatalf("text mismatch (-want +got):\n%s", diff)
			}
			closePlayback(t, b)
		})
	}
}

func TestGetErrorTextNoError(t *testing.T) {
	b := newPlayback([]conntest.IO{{W: []byte{0xAA, 0x09, 0x02}, R: []byte{0x00}}})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dev.GetErrorText(DefaultDeviceID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("wanted no condition, got %q", got)
	}
	closePlayback(t, b)
}

func TestGetErrorTimeoutKeepsState(t *testing.T) {
	c := &scriptConn{ops: []scriptOp{
		{w: []byte{0xAA, 0x09, 0x04, 0x01, 0x03, 0x55, 0x2A}, r: []byte{0x00}},
		{w: []byte{0xAA, 0x09, 0x02}, err: timeoutErr{}},
	}}
	dev, err := New(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SetPWMFrequency(3900*physic.Hertz, DefaultDeviceID); err != nil {
		t.Fatal(err)
	}
	_, err = dev.GetError(DefaultDeviceID)
	if !errors.Is(err, ErrTransportTimeout) {
		t.Fatalf("expected transport timeout, got %v", err)
	}
	if !errors.Is(err, timeoutErr{}) {
		t.Fatalf("expected the cause to be kept, got %v", err)
	}
	r, ok := dev.PWMResolution(DefaultDeviceID)
	if !ok || r != PWM3kHz8Bit {
		t.Fatalf("state changed: %s %t", r, ok)
	}
	if diff := cmp.Diff([]uint8{DefaultDeviceID}, dev.Devices()); diff != "" {
		t.Fatalf("devices mismatch (-want +got):\n%s", diff)
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("port closed")
	c := &scriptConn{ops: []scriptOp{
		{w: []byte{0xAA, 0x09, 0x03, 0x00}, err: cause},
	}}
	dev, err := New(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = dev.GetDeviceID(DefaultDeviceID)
	if !errors.Is(err, ErrTransport) || !errors.Is(err, cause) {
		t.Fatalf("expected transport error wrapping the cause, got %v", err)
	}
	if errors.Is(err, ErrTransportTimeout) {
		t.Fatalf("not a timeout: %v", err)
	}
}

func TestGetConfig(t *testing.T) {
	for _, test := range []struct {
		name      string
		param     ConfigParameter
		device    uint8
		ops       []conntest.IO
		want      uint8
		expectErr error
	}{
		{
			name:   "device id",
			param:  ConfigDeviceID,
			device: 9,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x03, 0x00}, R: []byte{0x09}},
			},
			want: 9,
		},
		{
			name:   "serial timeout",
			param:  ConfigSerialTimeout,
			device: 12,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x0C, 0x03, 0x03}, R: []byte{0x6C}},
			},
			want: 0x6C,
		},
		{
			name:      "invalid parameter",
			param:     ConfigParameter(4),
			device:    9,
			expectErr: ErrInvalidArgument,
		},
		{
			name:      "invalid device",
			param:     ConfigPWM,
			device:    128,
			expectErr: ErrInvalidArgument,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback(test.ops)
			dev, err := New(b, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := dev.GetConfig(test.param, test.device)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			if got != test.want {
				t.Fatalf("wanted: %d, got: %d", test.want, got)
			}
			closePlayback(t, b)
		})
	}
}

func TestSetConfig(t *testing.T) {
	for _, test := range []struct {
		name      string
		protocol  Protocol
		param     ConfigParameter
		value     uint8
		ops       []conntest.IO
		want      ConfigResult
		wantText  string
		expectErr error
	}{
		{
			name:  "ok",
			param: ConfigMotorErrorShutdown,
			value: 1,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x02, 0x01, 0x55, 0x2A}, R: []byte{0x00}},
			},
			want:     ConfigOK,
			wantText: "OK",
		},
		{
			name:     "compact",
			protocol: Compact,
			param:    ConfigSerialTimeout,
			value:    0,
			ops: []conntest.IO{
				{W: []byte{0xAA}},
				{W: []byte{0x84, 0x03, 0x00, 0x55, 0x2A}, R: []byte{0x00}},
			},
			want:     ConfigOK,
			wantText: "OK",
		},
		{
			name:  "invalid value",
			param: ConfigPWM,
			value: 9,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x01, 0x09, 0x55, 0x2A}, R: []byte{0x02}},
			},
			want:     ConfigInvalidValue,
			wantText: "Invalid Value",
		},
		{
			name:  "unknown result",
			param: ConfigMotorErrorShutdown,
			value: 0,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x02, 0x00, 0x55, 0x2A}, R: []byte{0x07}},
			},
			want:     ConfigResult(7),
			wantText: "unknown value: 7",
		},
		{
			name:      "value too large",
			param:     ConfigSerialTimeout,
			value:     0x80,
			want:      0,
			wantText:  "OK",
			expectErr: ErrInvalidArgument,
		},
		{
			name:      "unknown parameter",
			param:     ConfigParameter(0x10),
			value:     1,
			wantText:  "OK",
			expectErr: ErrInvalidArgument,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback(test.ops)
			dev, err := New(b, &Opts{Protocol: test.protocol})
			if err != nil {
				t.Fatal(err)
			}
			got, err := dev.SetConfig(test.param, test.value, DefaultDeviceID)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			if got != test.want {
				t.Fatalf("wanted: %d, got: %d", test.want, got)
			}
			if got.String() != test.wantText {
				t.Fatalf("wanted: %q, got: %q", test.wantText, got.String())
			}
			closePlayback(t, b)
		})
	}
}

func TestSetPWMFrequency(t *testing.T) {
	for _, test := range []struct {
		name      string
		freq      physic.Frequency
		ops       []conntest.IO
		want      ConfigResult
		wantPWM   PWMResolution
		tracked   bool
		expectErr error
	}{
		{
			name: "15.7kHz",
			freq: 15700 * physic.Hertz,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x01, 0x01, 0x55, 0x2A}, R: []byte{0x00}},
			},
			want:    ConfigOK,
			wantPWM: PWM15kHz8Bit,
			tracked: true,
		},
		{
			name: "7.8kHz",
			freq: 7800 * physic.Hertz,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x01, 0x02, 0x55, 0x2A}, R: []byte{0x00}},
			},
			want:    ConfigOK,
			wantPWM: PWM7kHz7Bit,
			tracked: true,
		},
		{
			name: "rejected by the controller",
			freq: 3900 * physic.Hertz,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x01, 0x03, 0x55, 0x2A}, R: []byte{0x01}},
			},
			want:    ConfigInvalidParameter,
			tracked: false,
		},
		{
			name:      "unsupported frequency",
			freq:      20 * physic.KiloHertz,
			expectErr: ErrInvalidArgument,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback(test.ops)
			dev, err := New(b, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := dev.SetPWMFrequency(test.freq, DefaultDeviceID)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			if got != test.want {
				t.Fatalf("wanted: %s, got: %s", test.want, got)
			}
			pwm, ok := dev.PWMResolution(DefaultDeviceID)
			if ok != test.tracked || pwm != test.wantPWM {
				t.Fatalf("wanted tracked %t %s, got %t %s", test.tracked, test.wantPWM, ok, pwm)
			}
			closePlayback(t, b)
		})
	}
}

func TestGetPWMFrequency(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x03, 0x01}, R: []byte{0x03}},
		{W: []byte{0xAA, 0x0A, 0x03, 0x01}, R: []byte{0x05}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dev.GetPWMFrequency(9)
	if err != nil {
		t.Fatal(err)
	}
	if got != PWM3kHz8Bit || got.Frequency() != 3900*physic.Hertz {
		t.Fatalf("wanted %s, got %s", PWM3kHz8Bit, got)
	}
	if r, ok := dev.PWMResolution(9); !ok || r != PWM3kHz8Bit {
		t.Fatalf("resolution not tracked: %s %t", r, ok)
	}

	got, err = dev.GetPWMFrequency(10)
	if err != nil {
		t.Fatal(err)
	}
	if got.Valid() || got.String() != "unknown value: 5" || got.Frequency() != 0 {
		t.Fatalf("wanted unknown value, got %q", got)
	}
	if _, ok := dev.PWMResolution(10); ok {
		t.Fatal("unknown resolution must not be tracked")
	}
	closePlayback(t, b)
}

func TestSetDeviceIDMovesState(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x04, 0x01, 0x01, 0x55, 0x2A}, R: []byte{0x00}},
		{W: []byte{0xAA, 0x09, 0x04, 0x00, 0x7F, 0x55, 0x2A}, R: []byte{0x00}},
		{W: []byte{0xAA, 0x7F, 0x09, 0x48}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SetPWMFrequency(15700*physic.Hertz, 9); err != nil {
		t.Fatal(err)
	}
	res, err := dev.SetDeviceID(127, 9)
	if err != nil {
		t.Fatal(err)
	}
	if res != ConfigOK {
		t.Fatalf("wanted OK, got %s", res)
	}
	if r, ok := dev.PWMResolution(127); !ok || r != PWM15kHz8Bit {
		t.Fatalf("resolution not carried over: %s %t", r, ok)
	}
	if _, ok := dev.PWMResolution(9); ok {
		t.Fatal("old id still tracked")
	}
	if diff := cmp.Diff([]uint8{127}, dev.Devices()); diff != "" {
		t.Fatalf("devices mismatch (-want +got):\n%s", diff)
	}
	// The new id keeps the 8 bit encoding.
	if err := dev.SetM0Speed(200, 127); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)
}

func TestSetDeviceID(t *testing.T) {
	for _, test := range []struct {
		name      string
		id        uint8
		ops       []conntest.IO
		want      ConfigResult
		expectErr error
	}{
		{
			name: "untracked device",
			id:   10,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x00, 0x0A, 0x55, 0x2A}, R: []byte{0x00}},
			},
			want: ConfigOK,
		},
		{
			name: "rejected",
			id:   10,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x04, 0x00, 0x0A, 0x55, 0x2A}, R: []byte{0x02}},
			},
			want: ConfigInvalidValue,
		},
		{
			name:      "id out of range",
			id:        200,
			expectErr: ErrInvalidArgument,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback(test.ops)
			dev, err := New(b, nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := dev.SetDeviceID(test.id, DefaultDeviceID)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			if got != test.want {
				t.Fatalf("wanted: %s, got: %s", test.want, got)
			}
			if len(dev.Devices()) != 0 {
				t.Fatalf("unexpected tracked devices %v", dev.Devices())
			}
			closePlayback(t, b)
		})
	}
}

func TestMotorShutdownOnError(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x03, 0x02}, R: []byte{0x01}},
		{W: []byte{0xAA, 0x09, 0x03, 0x02}, R: []byte{0x00}},
		{W: []byte{0xAA, 0x09, 0x03, 0x02}, R: []byte{0x04}},
		{W: []byte{0xAA, 0x09, 0x04, 0x02, 0x00, 0x55, 0x2A}, R: []byte{0x00}},
		{W: []byte{0xAA, 0x09, 0x04, 0x02, 0x01, 0x55, 0x2A}, R: []byte{0x00}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := dev.GetMotorShutdownOnError(9); err != nil || !got {
		t.Fatalf("wanted true, got %t, %v", got, err)
	}
	if got, err := dev.GetMotorShutdownOnError(9); err != nil || got {
		t.Fatalf("wanted false, got %t, %v", got, err)
	}
	if _, err := dev.GetMotorShutdownOnError(9); !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if _, err := dev.SetMotorShutdownOnError(false, 9); err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SetMotorShutdownOnError(true, 9); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)
}

func TestSerialTimeout(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x04, 0x03, 0x6C, 0x55, 0x2A}, R: []byte{0x00}},
		{W: []byte{0xAA, 0x09, 0x03, 0x03}, R: []byte{0x6C}},
		{W: []byte{0xAA, 0x09, 0x04, 0x03, 0x01, 0x55, 0x2A}, R: []byte{0x00}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.SetSerialTimeout(200*time.Second, 9); err != nil {
		t.Fatal(err)
	}
	got, err := dev.GetSerialTimeout(9)
	if err != nil {
		t.Fatal(err)
	}
	if want := 201216 * time.Millisecond; got != want {
		t.Fatalf("wanted %s, got %s", want, got)
	}
	if _, err := dev.SetSerialTimeout(300*time.Millisecond, 9); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)
}

func TestSetSpeed(t *testing.T) {
	for _, test := range []struct {
		name      string
		pwm       *PWMResolution
		protocol  Protocol
		speed     int
		motor     Motor
		device    uint8
		ops       []conntest.IO
		expectErr error
	}{
		{
			name:  "7 bit resolution clamps to 127",
			pwm:   ptr(PWM31kHz7Bit),
			speed: 200,
			motor: M0,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x08, 0x7F}},
			},
		},
		{
			name:  "untracked device uses 7 bit",
			speed: 200,
			motor: M0,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x08, 0x7F}},
			},
		},
		{
			name:  "8 bit forward",
			pwm:   ptr(PWM15kHz8Bit),
			speed: 200,
			motor: M0,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x09, 0x48}},
			},
		},
		{
			name:  "8 bit clamps to 255",
			pwm:   ptr(PWM3kHz8Bit),
			speed: 1000,
			motor: M1,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x0D, 0x7F}},
			},
		},
		{
			name:  "8 bit reverse",
			pwm:   ptr(PWM15kHz8Bit),
			speed: -128,
			motor: M0,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x0B, 0x00}},
			},
		},
		{
			name:  "8 bit reverse clamps",
			pwm:   ptr(PWM15kHz8Bit),
			speed: -100000,
			motor: M1,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x0F, 0x7F}},
			},
		},
		{
			name:  "7 bit reverse",
			pwm:   ptr(PWM15kHz8Bit),
			speed: -50,
			motor: M1,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x0E, 0x32}},
			},
		},
		{
			name:  "stop",
			speed: 0,
			motor: M1,
			ops: []conntest.IO{
				{W: []byte{0xAA, 0x09, 0x0C, 0x00}},
			},
		},
		{
			name:     "compact",
			protocol: Compact,
			pwm:      ptr(PWM7kHz7Bit),
			speed:    -300,
			motor:    M0,
			ops: []conntest.IO{
				{W: []byte{0xAA}},
				{W: []byte{0x8A, 0x7F}},
			},
		},
		{
			name:      "invalid motor",
			speed:     10,
			motor:     Motor(2),
			expectErr: ErrInvalidArgument,
		},
		{
			name:      "invalid device",
			speed:     10,
			motor:     M0,
			device:    0x80,
			expectErr: ErrInvalidArgument,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b := newPlayback(test.ops)
			dev, err := New(b, &Opts{Protocol: test.protocol})
			if err != nil {
				t.Fatal(err)
			}
			device := test.device
			if device == 0 {
				device = DefaultDeviceID
			}
			if test.pwm != nil {
				dev.pwm[device] = *test.pwm
			}
			err = dev.SetSpeed(test.speed, test.motor, device)
			if !errors.Is(err, test.expectErr) {
				t.Fatalf("expected error: %v, got: %v", test.expectErr, err)
			}
			closePlayback(t, b)
		})
	}
}

func TestCoast(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x06}},
		{W: []byte{0xAA, 0x09, 0x07}},
		{W: []byte{0xAA}},
		{W: []byte{0x86}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.SetM0Coast(9); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetM1Coast(9); err != nil {
		t.Fatal(err)
	}
	if err := dev.Coast(Motor(3), 9); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if err := dev.SetProtocol(Compact); err != nil {
		t.Fatal(err)
	}
	if err := dev.SetM0Coast(9); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)
}

func TestHalt(t *testing.T) {
	b := newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x09, 0x06}},
		{W: []byte{0xAA, 0x09, 0x07}},
	})
	dev, err := New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)

	b = newPlayback([]conntest.IO{
		{W: []byte{0xAA, 0x0A, 0x06}},
		{W: []byte{0xAA, 0x0A, 0x07}},
		{W: []byte{0xAA, 0x0B, 0x06}},
		{W: []byte{0xAA, 0x0B, 0x07}},
	})
	dev, err = New(b, nil)
	if err != nil {
		t.Fatal(err)
	}
	dev.pwm[11] = PWM3kHz8Bit
	dev.pwm[10] = PWM31kHz7Bit
	if err := dev.Halt(); err != nil {
		t.Fatal(err)
	}
	closePlayback(t, b)
}

func TestScan(t *testing.T) {
	c := &scriptConn{ops: []scriptOp{
		{w: []byte{0xAA, 0x08, 0x03, 0x00}, err: timeoutErr{}},
		{w: []byte{0xAA, 0x09, 0x03, 0x00}, r: []byte{0x09}},
		{w: []byte{0xAA, 0x09, 0x03, 0x01}, r: []byte{0x01}},
		{w: []byte{0xAA, 0x0A, 0x03, 0x00}, r: []byte{0x33}},
		{w: []byte{0xAA, 0x0B, 0x03, 0x00}, r: []byte{0x0B}},
		{w: []byte{0xAA, 0x0B, 0x03, 0x01}, r: []byte{0x02}},
	}}
	dev, err := New(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	found, err := dev.Scan(8, 9, 10, 11)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint8{9, 11}, found); diff != "" {
		t.Fatalf("found mismatch (-want +got):\n%s", diff)
	}
	if r, _ := dev.PWMResolution(9); r != PWM15kHz8Bit {
		t.Fatalf("wanted %s for 9, got %s", PWM15kHz8Bit, r)
	}
	if r, _ := dev.PWMResolution(11); r != PWM7kHz7Bit {
		t.Fatalf("wanted %s for 11, got %s", PWM7kHz7Bit, r)
	}
	if c.count != len(c.ops) {
		t.Fatalf("wanted %d exchanges, got %d", len(c.ops), c.count)
	}
}

// gateConn blocks its first exchange until released and records every write.
type gateConn struct {
	replies map[string]byte
	started chan struct{}
	release chan struct{}

	mu     sync.Mutex
	writes [][]byte
}

func (g *gateConn) String() string      { return "gate" }
func (g *gateConn) Halt() error         { return nil }
func (g *gateConn) Duplex() conn.Duplex { return conn.Half }

func (g *gateConn) Tx(w, r []byte) error {
	g.mu.Lock()
	g.writes = append(g.writes, append([]byte(nil), w...))
	first := len(g.writes) == 1
	g.mu.Unlock()
	if first {
		close(g.started)
		<-g.release
	}
	if len(r) != 0 {
		v, ok := g.replies[string(w)]
		if !ok {
			return fmt.Errorf("unexpected write % x", w)
		}
		r[0] = v
	}
	return nil
}

func TestScanHoldsDev(t *testing.T) {
	g := &gateConn{
		replies: map[string]byte{
			string([]byte{0xAA, 0x09, 0x03, 0x00}): 0x09,
			string([]byte{0xAA, 0x09, 0x03, 0x01}): 0x01,
			string([]byte{0xAA, 0x09, 0x02}):       0x00,
		},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	dev, err := New(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	scanned := make(chan error)
	go func() {
		_, err := dev.Scan(9)
		scanned <- err
	}()
	<-g.started
	read := make(chan error)
	go func() {
		_, err := dev.GetError(9)
		read <- err
	}()
	// Give GetError a chance to cut in between the two probes of id 9.
	time.Sleep(10 * time.Millisecond)
	close(g.release)
	if err := <-scanned; err != nil {
		t.Fatal(err)
	}
	if err := <-read; err != nil {
		t.Fatal(err)
	}
	want := [][]byte{
		{0xAA, 0x09, 0x03, 0x00},
		{0xAA, 0x09, 0x03, 0x01},
		{0xAA, 0x09, 0x02},
	}
	if diff := cmp.Diff(want, g.writes); diff != "" {
		t.Fatalf("writes mismatch (-want +got):\n%s", diff)
	}
}

func TestScanErrors(t *testing.T) {
	cause := errors.New("unplugged")
	c := &scriptConn{ops: []scriptOp{
		{w: []byte{0xAA, 0x09, 0x03, 0x00}, r: []byte{0x09}},
		{w: []byte{0xAA, 0x09, 0x03, 0x01}, r: []byte{0x00}},
		{w: []byte{0xAA, 0x0A, 0x03, 0x00}, err: cause},
	}}
	dev, err := New(c, nil)
	if err != nil {
		t.Fatal(err)
	}
	found, err := dev.Scan(9, 10, 11)
	if !errors.Is(err, cause) {
		t.Fatalf("expected the transport error, got %v", err)
	}
	if diff := cmp.Diff([]uint8{9}, found); diff != "" {
		t.Fatalf("found mismatch (-want +got):\n%s", diff)
	}

	if _, err := dev.Scan(200); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	b := newPlayback([]conntest.IO{{W: []byte{0xAA}}})
	dev, err = New(b, &Opts{Protocol: Compact})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dev.Scan(); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected invalid argument in compact mode, got %v", err)
	}
	closePlayback(t, b)
}

func ptr[T any](v T) *T {
	return &v
}
