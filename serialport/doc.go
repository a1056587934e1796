// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialport exposes an operating system serial port as a half
// duplex conn.Conn.
//
// Each Tx call writes the request and then reads exactly len(r) bytes back,
// holding the port for the whole exchange. This matches request/response
// protocols where the reply carries no correlation id and interleaving two
// exchanges on one wire would attribute a reply to the wrong request.
//
// Independent ports are independent and may be used concurrently.
package serialport
