// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package qik interfaces with Pololu Qik dual serial motor controllers.
//
// Any number of controllers can share one serial line. In the addressed
// (Pololu) protocol every command carries the id of the controller it is
// meant for; in the compact protocol there is no address and only one
// controller may listen. The driver always starts in the addressed protocol:
// a controller left in compact mode by a crashed program can always be
// reached again that way.
//
// Every query is answered by a single byte without any correlation id, so the
// driver never pipelines commands. Motion and coast commands are not
// acknowledged by the controller.
//
// # Datasheet
//
// https://www.pololu.com/docs/0J25
//
// # Product Page
//
// Qik 2s9v1: https://www.pololu.com/product/1110
package qik
