// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"
)

type shell struct {
	*ishell.Shell
	a      *app
	failed bool
}

func newShell(a *app) *shell {
	s := &shell{Shell: ishell.New(), a: a}
	s.SetPrompt(fmt.Sprintf("qik[%d] > ", a.cfg.Device))
	for i := range commands {
		cmd := &commands[i]
		help := cmd.help
		if cmd.usage != "" {
			help = cmd.usage + ": " + help
		}
		s.AddCmd(&ishell.Cmd{
			Name: cmd.name,
			Help: help,
			Func: func(c *ishell.Context) {
				out, err := cmd.exec(a, c.Args)
				if err != nil {
					glog.V(1).Infof("%s %v: %v", cmd.name, c.Args, err)
					s.failed = true
					c.Err(err)
					return
				}
				if out != "" {
					c.Println(out)
				}
			},
		})
	}
	return s
}

// eval runs a single command line and reports whether it succeeded.
func (s *shell) eval(args ...string) error {
	s.failed = false
	if err := s.Process(args...); err != nil {
		return err
	}
	if s.failed {
		return fmt.Errorf("%s failed", args[0])
	}
	return nil
}
