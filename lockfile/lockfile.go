// Copyright 2020 The Cacophony Project. All rights reserved.
// Use of this source code is governed by the Apache License Version 2.0;
// see the LICENSE file for further details.

// Package lockfile provides an advisory lock file shared by every
// process that allocates frame buffers on the same device.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// DefaultDir is where lock files are created unless told otherwise.
const DefaultDir = "/var/lock"

// Path returns the lock file path for the device named device.
func Path(dir, device string) string {
	return filepath.Join(dir, fmt.Sprintf("ntv2-%s.lock", device))
}

// File is an exclusive flock on a file. Lock blocks until the lock
// is available.
type File struct {
	path string

	mu sync.Mutex
	f  *os.File
}

func New(path string) *File {
	return &File{path: path}
}

func (l *File) Path() string {
	return l.path
}

func (l *File) Lock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		return errors.Errorf("%s already locked", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "open lock file")
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "lock %s", l.path)
	}
	l.f = f
	return nil
}

// TryLock takes the lock without blocking. It returns false when
// another process holds it.
func (l *File) TryLock() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		return false, errors.Errorf("%s already locked", l.path)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return false, errors.Wrap(err, "open lock file")
	}
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == unix.EWOULDBLOCK {
		f.Close()
		return false, nil
	}
	if err != nil {
		f.Close()
		return false, errors.Wrapf(err, "lock %s", l.path)
	}
	l.f = f
	return true, nil
}

func (l *File) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return errors.Errorf("%s not locked", l.path)
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	cerr := l.f.Close()
	l.f = nil
	if err != nil {
		return errors.Wrapf(err, "unlock %s", l.path)
	}
	return cerr
}
