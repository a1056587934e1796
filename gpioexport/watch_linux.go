// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gpioexport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// edgeWatcher waits for the edge interrupts the kernel signals on a value
// attribute with POLLPRI.
type edgeWatcher struct {
	f    *os.File
	epfd int
}

func newEdgeWatcher(path string) (*edgeWatcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gpioexport: %w", err)
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("gpioexport: epoll: %w", err)
	}
	fd := int(f.Fd())
	ev := unix.EpollEvent{Events: unix.EPOLLPRI | unix.EPOLLERR | unix.EPOLLET, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		unix.Close(epfd)
		f.Close()
		// Regular files, like outside sysfs, cannot be watched.
		return nil, fmt.Errorf("gpioexport: epoll on %s: %w", path, err)
	}
	w := &edgeWatcher{f: f, epfd: epfd}
	// sysfs reports the current state once; consume it.
	if _, err := w.wait(0); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

// wait returns true when an edge was signaled within timeout. A negative
// timeout waits forever.
func (w *edgeWatcher) wait(timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	var events [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(w.epfd, events[:], ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("gpioexport: epoll: %w", err)
		}
		if n == 0 {
			return false, nil
		}
		// Reading from the start rearms the notification.
		var b [2]byte
		if _, err := w.f.ReadAt(b[:], 0); err != nil && !errors.Is(err, io.EOF) {
			return true, fmt.Errorf("gpioexport: %w", err)
		}
		return true, nil
	}
}

func (w *edgeWatcher) Close() error {
	err := unix.Close(w.epfd)
	return errors.Join(err, w.f.Close())
}
