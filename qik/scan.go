// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package qik

import (
	"errors"
	"fmt"

	"github.com/golang/glog"
)

// Scan probes controller ids in the addressed protocol and returns the ids
// that answered, in probing order.
//
// When no id is given, every id from 0 to MaxDeviceID is probed. Each
// controller found gets its PWM resolution tracked. Ids that stay silent are
// skipped; any other error stops the scan and is returned along with what was
// found so far.
//
// Each silent id costs one read timeout of the connection, so a full scan
// with a 1s timeout takes about two minutes. Other calls on d wait until the
// scan ends; this only holds the bus when d is the connection's only Dev.
func (d *Dev) Scan(ids ...uint8) ([]uint8, error) {
	if len(ids) == 0 {
		ids = make([]uint8, 0, int(MaxDeviceID)+1)
		for id := 0; id <= int(MaxDeviceID); id++ {
			ids = append(ids, uint8(id))
		}
	}
	for _, id := range ids {
		if err := checkDevice(id); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.protocol != Addressed {
		return nil, fmt.Errorf("%w: scanning requires the %s", ErrInvalidArgument, Addressed)
	}
	var found []uint8
	for _, id := range ids {
		v, err := d.query(cmdGetConfig, id, byte(ConfigDeviceID))
		if errors.Is(err, ErrTransportTimeout) {
			continue
		}
		if err != nil {
			return found, err
		}
		if v != id {
			glog.V(2).Infof("qik: id %d answered as %d, ignoring", id, v)
			continue
		}
		code, err := d.query(cmdGetConfig, id, byte(ConfigPWM))
		if err != nil {
			return found, err
		}
		if r := PWMResolution(code); r.Valid() {
			d.pwm[id] = r
		}
		found = append(found, id)
	}
	return found, nil
}
